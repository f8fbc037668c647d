package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/venuetix-solutions/ms-go-orders/config"
)

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.AddHook(&serviceNameHook{serviceName: cfg.App.ServiceName})

	return nil
}

type serviceNameHook struct {
	serviceName string
}

func (h *serviceNameHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceNameHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.serviceName
	return nil
}

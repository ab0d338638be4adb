package config

import (
	"os"
	"os/user"

	"github.com/vietddude/exlog/internal/core/domain"
)

// ApplicationContext builds the application context from the config and the running process.
func (c *AppConfig) ApplicationContext() domain.Application {
	app := domain.Application{
		MachineName:     c.machineName(),
		ApplicationName: c.Application.Name,
		EnvironmentName: c.Application.Environment,
	}
	if exe, err := os.Executable(); err == nil {
		app.ProcessPath = exe
	}
	if u, err := user.Current(); err == nil {
		app.Identity = u.Username
	}
	return app
}

// HostingContext describes this process as the web application serving requests.
func (c *AppConfig) HostingContext() domain.Hosting {
	h := domain.Hosting{
		MachineName:   c.machineName(),
		ApplicationID: c.Application.Name,
		VirtualPath:   c.HTTP.VirtualPath,
		SiteName:      c.HTTP.SiteName,
	}
	if h.SiteName == "" {
		h.SiteName = c.Application.Name
	}
	if wd, err := os.Getwd(); err == nil {
		h.PhysicalPath = wd
	}
	return h
}

func (c *AppConfig) machineName() string {
	if c.Application.MachineName != "" {
		return c.Application.MachineName
	}
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

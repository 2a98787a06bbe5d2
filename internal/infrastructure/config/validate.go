package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate reports every problem at once, joined with "; ".
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Site.ID != "", "site.id is required")
	_, tzErr := time.LoadLocation(c.Site.Timezone)
	check(tzErr == nil, "site.timezone %q is not a valid IANA zone", c.Site.Timezone)

	check(c.Database.Path != "", "database.path is required")

	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	check(c.MQTT.Namespace != "", "mqtt.namespace is required")
	check(!strings.ContainsAny(c.MQTT.Namespace, "+#"), "mqtt.namespace must not contain wildcards")

	check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")
	check(c.Engine.IntervalSeconds > 0, "engine.interval_seconds must be positive")
	check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
}

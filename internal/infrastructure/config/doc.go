// Package config loads configs/config.yaml.
//
// Values come from three layers, later ones winning: built-in defaults,
// the YAML file, and SOLARCORE_<SECTION>_<KEY> environment variables
// (SOLARCORE_MQTT_PASSWORD, SOLARCORE_INFLUXDB_TOKEN and so on). Secrets
// belong in the environment rather than the file.
//
//	cfg, err := config.Load(path)
//	if errors.Is(err, fs.ErrNotExist) {
//	    cfg, err = config.Default()
//	}
//
// The defaults section seeds the settings store on first start only.
package config

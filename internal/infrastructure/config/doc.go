// Package config loads HydroCore configuration.
//
// Values resolve in three layers: hardcoded defaults, then the YAML
// file, then HYDROCORE_* environment variables, with Validate() run on
// the final result. Secrets (MQTT password, Influx token) belong in the
// environment, not the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config

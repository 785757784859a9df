// Package config loads the settings of the ipcd-client daemon.
//
// Configuration is read from a YAML file, overlaid on defaults and then
// overridden by environment variables:
//
//	IPCD_HOSTNAME      hostname
//	IPCD_VERSION       ipcd_version
//	IPCD_LOG_LEVEL     logging.level
//	IPCD_QUEUE_PATH    queue.path
//	IPCD_METRICS_ADDR  metrics.addr
//
// Usage:
//
//	cfg, err := config.Load("ipcd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := client.NewClientWithLogging(cfg.Hostname, nil, cfg.LogConfig())
package config

// Package config loads the vango-terminal server configuration.
//
// Settings come from vango-terminal.yaml and from environment variables
// prefixed with VANGO_TERMINAL_, where nested keys join with underscores.
// Environment variables win over the file, and the file wins over the
// built-in defaults.
//
// # Configuration File Structure
//
//	log_level: info
//	server:
//	  addr: ":8080"
//	  application_name: vango
//	  theme: default
//	  themes_dir: ./themes
//	  max_uidl_size: 1048576
//	session:
//	  store: redis            # memory, redis or sql
//	  redis_url: redis://localhost:6379/0
//	  max_inactive: 30m
//	upload:
//	  prefix: APP/UPLOAD/
//	  max_file_size: 10485760
//	  store: s3               # disk or s3
//	  s3:
//	    bucket: uploads
//	    region: eu-west-1
//	metrics:
//	  enabled: true
//	  addr: ":9090"
//	tracing:
//	  enabled: true
//	  sample_ratio: 0.1
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	servlet := server.NewServlet(cfg.ServerConfig(), sessions, newApp)
package config

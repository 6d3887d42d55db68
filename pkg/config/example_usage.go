package config

// The configuration layering in practice:
//
// Defaults only, adjusted in code:
//
//	cfg := config.DefaultConfig()
//	cfg.Network.Session = "your-session-cookie"
//	cfg.Download.ConcurrentDownloads = 5
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// Full stack, defaults then file then environment then flags. An empty
// path makes Load search the standard locations, a nil map skips the
// flag layer:
//
//	cfg, err := config.Load("", nil)
//
//	cfg, err := config.Load("/path/to/config.yaml", nil)
//
//	cfg, err := config.Load("", map[string]interface{}{
//	    "session":              "abc123",
//	    "output":               "./my-downloads",
//	    "concurrent-downloads": 5,
//	    "requests-per-minute":  90,
//	    "log-level":            "debug",
//	})
//
// The environment layer reads KEMONOGRAB_* variables:
//
//	export KEMONOGRAB_SESSION="your-session-cookie"
//	export KEMONOGRAB_USER_AGENT="custom-agent/1.0"
//	export KEMONOGRAB_PROXY_URL="socks5://127.0.0.1:9050"
//	export KEMONOGRAB_OUTPUT_DIR="./downloads"
//	export KEMONOGRAB_CONCURRENT_DOWNLOADS="5"
//	export KEMONOGRAB_REQUESTS_PER_MINUTE="30"
//	export KEMONOGRAB_NOTIFICATIONS_ENABLED="true"
//	export KEMONOGRAB_LOG_LEVEL="debug"
//
// A resolved Config feeds the rest of the system directly:
//
//	client := kemono.NewClient(cfg, logger.GetLogger())
//	c, err := crawler.New(cfg, nil)
//
// and Save writes it back out for `config init` style workflows:
//
//	if err := cfg.Save(".kemonograb.yaml"); err != nil {
//	    log.Fatal(err)
//	}

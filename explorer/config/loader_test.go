package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	. "github.com/Cogwheel-Validator/grant-explorer/explorer/config"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/ipfs"
	"github.com/zeebo/assert"
)

// helper to reset env vars with EXPLORER_ prefix between tests
func unsetExplorerEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "EXPLORER_") {
			if idx := strings.Index(e, "="); idx != -1 {
				key, value := e[:idx], e[idx+1:]
				_ = os.Unsetenv(key)
				t.Cleanup(func() { _ = os.Setenv(key, value) })
			}
		}
	}
	// run in an empty dir so godotenv.Load() does not pick up a .env file
	t.Chdir(t.TempDir())
}

func TestLoadExplorerConfig_FromEnv_Success(t *testing.T) {
	unsetExplorerEnv(t)
	t.Setenv("EXPLORER_PORT", "8081")
	t.Setenv("EXPLORER_HOST", "127.0.0.1")
	t.Setenv("EXPLORER_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("EXPLORER_SUBGRAPH_MAINNET_API", "https://subgraph.example/mainnet")
	t.Setenv("EXPLORER_SUBGRAPH_DEFAULT_API", "https://subgraph.example/local")
	t.Setenv("EXPLORER_PRICE_API_KEY", "secret")
	t.Setenv("EXPLORER_REQUEST_TIMEOUT", "5s")

	cfg, err := LoadExplorerConfig(nil)
	assert.NoError(t, err)
	assert.Equal(t, cfg.Port, 8081)
	assert.Equal(t, cfg.Host, "127.0.0.1")
	assert.Equal(t, len(cfg.AllowedOrigins), 2)
	assert.Equal(t, cfg.SubgraphMainnetAPI, "https://subgraph.example/mainnet")
	assert.Equal(t, cfg.PriceAPIKey, "secret")
	assert.Equal(t, cfg.RequestTimeout, 5*time.Second)

	endpoints := cfg.Endpoints()
	assert.Equal(t, len(endpoints.Endpoints), 1)
	assert.Equal(t, endpoints.Endpoints[chains.Mainnet], "https://subgraph.example/mainnet")
	assert.Equal(t, endpoints.Default, "https://subgraph.example/local")
}

func TestLoadExplorerConfig_FromEnv_Defaults(t *testing.T) {
	unsetExplorerEnv(t)

	cfg, err := LoadExplorerConfig(nil)
	assert.NoError(t, err)
	assert.Equal(t, cfg.Port, DefaultPort)
	assert.Equal(t, cfg.Host, DefaultHost)
	assert.Equal(t, cfg.IPFSGateway, ipfs.DefaultGateway)
	assert.Equal(t, cfg.RequestTimeout, DefaultRequestTimeout)
	assert.Equal(t, cfg.PriceAPIKey, "")
	assert.Equal(t, len(cfg.Endpoints().Endpoints), 0)
}

func TestLoadExplorerConfig_FromEnv_FailVerification(t *testing.T) {
	unsetExplorerEnv(t)
	t.Setenv("EXPLORER_PORT", "70000")

	_, err := LoadExplorerConfig(nil)
	assert.Error(t, err)
}

func TestLoadExplorerConfig_FromEnv_OTLPWithoutURL(t *testing.T) {
	unsetExplorerEnv(t)
	t.Setenv("EXPLORER_USE_OTLP_TRACES", "true")

	_, err := LoadExplorerConfig(nil)
	assert.Error(t, err)
}

func TestLoadExplorerConfig_FromFile_Success(t *testing.T) {
	unsetExplorerEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "explorer.toml")
	content := `
port = 9090
host = "127.0.0.1"
allowed_origins = ["https://example.com"]
ipfs_gateway = "ipfs.example.com"
subgraph_goerli_api = "https://subgraph.example/goerli"
rate_per_minute = 60
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadExplorerConfig(&path)
	assert.NoError(t, err)
	assert.Equal(t, cfg.Port, 9090)
	assert.Equal(t, cfg.Host, "127.0.0.1")
	assert.Equal(t, len(cfg.AllowedOrigins), 1)
	assert.Equal(t, cfg.AllowedOrigins[0], "https://example.com")
	assert.Equal(t, cfg.IPFSGateway, "ipfs.example.com")
	assert.Equal(t, cfg.RatePerMinute, 60)
	assert.Equal(t, cfg.Endpoints().Endpoints[chains.Goerli], "https://subgraph.example/goerli")
}

func TestLoadExplorerConfig_FromFile_WrongExtension(t *testing.T) {
	unsetExplorerEnv(t)
	p := "config.yaml"
	_, err := LoadExplorerConfig(&p)
	assert.Error(t, err)
}

func TestLoadExplorerConfig_FileOverridesEnv(t *testing.T) {
	unsetExplorerEnv(t)
	t.Setenv("EXPLORER_PORT", "8000")
	t.Setenv("EXPLORER_HOST", "0.0.0.0")

	dir := t.TempDir()
	path := filepath.Join(dir, "explorer.toml")
	content := `
port = 7000
host = "1.2.3.4"
allowed_origins = ["https://a.com"]
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadExplorerConfig(&path)
	assert.NoError(t, err)
	assert.Equal(t, cfg.Port, 7000)
	assert.Equal(t, cfg.Host, "1.2.3.4")
}

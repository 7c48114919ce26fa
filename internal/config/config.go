// Package config 定义筛选器的完整配置：日期窗口、过滤开关、均线周期、并发与缓存、
// 重试与 SMTP。先取默认值，再被 envConfigPath 指定的 JSON 文件与环境变量覆盖。
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// 配置文件与环境变量名
const (
	defaultConfigPath = "config.json"
	envConfigPath     = "CONFIG_PATH"

	envStartDate   = "CHIPDIP_START_DATE"
	envEndDate     = "CHIPDIP_END_DATE"
	envMaxWorkers  = "CHIPDIP_MAX_WORKERS"
	envChunkSize   = "CHIPDIP_CHUNK_SIZE"
	envMemoryLimit = "CHIPDIP_MEMORY_LIMIT"
	envCacheDir    = "CHIPDIP_CACHE_DIR"
	envRetryTimes  = "CHIPDIP_RETRY_TIMES"
)

// 默认值（与界面端约定一致）
const (
	defaultWindowDays       = 365
	defaultMinDataLength    = 30
	defaultMinTradingAmount = 1000000
	defaultRecentDays       = 20
	defaultMaxWorkers       = 24
	defaultChunkSize        = 512
	defaultMemoryLimit      = 16 << 30 // 16GB
	defaultCacheTTL         = 3600
	defaultRetryTimes       = 3
	defaultRetryDelay       = time.Second
	defaultCacheDir         = "cache"
	defaultAdjust           = "qfq"
	dateLayout              = "20060102"
)

// 请求节流默认区间（秒），对应上游防封的请求间隔抖动
const (
	defaultRequestDelayMin = 0.1
	defaultRequestDelayMax = 0.3
)

// Data 日期窗口与数据量要求。MinTradingAmount 为声明项，当前不参与过滤。
type Data struct {
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	MinDataLength    int     `json:"min_data_length"`
	MinTradingAmount float64 `json:"min_trading_amount"`
	Adjust           string  `json:"adjust"`
}

// FilterSwitches 股票池剔除开关，逐项可独立启停。
type FilterSwitches struct {
	ExcludeST   bool `json:"exclude_st"`   // 剔除 ST/*ST
	ExcludeGEM  bool `json:"exclude_gem"`  // 剔除创业板(300)
	ExcludeSTAR bool `json:"exclude_star"` // 剔除科创板(688)
	ExcludeBSE  bool `json:"exclude_bse"`  // 剔除北交所(8)
}

// Technical 五线谱均线标签与周期；基准线/支撑线按标签 ma20/ma60 取值。
type Technical struct {
	MovingAverages map[string]int `json:"moving_averages"`
	RecentDays     int            `json:"recent_days"`
}

// System 并发、缓存与重试。CacheEnabled 与 CacheTTL 为声明项，
// 磁盘层不做按条过期，内存层仅由内存守卫整体清空。
type System struct {
	MaxWorkers      int           `json:"max_workers"`
	ChunkSize       int           `json:"chunk_size"`
	MemoryLimit     uint64        `json:"memory_limit"`
	CacheEnabled    bool          `json:"cache_enabled"`
	CacheTTL        int           `json:"cache_ttl"`
	CacheDir        string        `json:"cache_dir"`
	RetryTimes      int           `json:"retry_times"`
	RetryDelay      time.Duration `json:"-"`
	RetryDelaySec   float64       `json:"retry_delay"`
	RequestDelayMin float64       `json:"request_delay_min"`
	RequestDelayMax float64       `json:"request_delay_max"`
}

// Config 不可变的运行配置；一轮筛选启动后不再修改。
type Config struct {
	Data           Data           `json:"data"`
	FilterSwitches FilterSwitches `json:"filter_switches"`
	Technical      Technical      `json:"technical"`
	System         System         `json:"system"`
}

// Default 返回默认配置：窗口为最近一年，五线谱 5/10/20/30/60。
func Default() *Config {
	now := time.Now()
	return &Config{
		Data: Data{
			StartDate:        now.AddDate(0, 0, -defaultWindowDays).Format(dateLayout),
			EndDate:          now.Format(dateLayout),
			MinDataLength:    defaultMinDataLength,
			MinTradingAmount: defaultMinTradingAmount,
			Adjust:           defaultAdjust,
		},
		FilterSwitches: FilterSwitches{
			ExcludeST:   true,
			ExcludeGEM:  true,
			ExcludeSTAR: true,
			ExcludeBSE:  true,
		},
		Technical: Technical{
			MovingAverages: map[string]int{
				"ma5":  5,
				"ma10": 10,
				"ma20": 20,
				"ma30": 30,
				"ma60": 60,
			},
			RecentDays: defaultRecentDays,
		},
		System: System{
			MaxWorkers:      defaultMaxWorkers,
			ChunkSize:       defaultChunkSize,
			MemoryLimit:     defaultMemoryLimit,
			CacheEnabled:    true,
			CacheTTL:        defaultCacheTTL,
			CacheDir:        defaultCacheDir,
			RetryTimes:      defaultRetryTimes,
			RetryDelay:      defaultRetryDelay,
			RequestDelayMin: defaultRequestDelayMin,
			RequestDelayMax: defaultRequestDelayMax,
		},
	}
}

// Load 默认值 + envConfigPath 指定文件（默认 config.json）+ 环境变量覆盖。
func Load() *Config {
	cfg := Default()
	configPath := os.Getenv(envConfigPath)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	if b, err := os.ReadFile(configPath); err == nil {
		_ = json.Unmarshal(b, cfg)
	}
	if cfg.System.RetryDelaySec > 0 {
		cfg.System.RetryDelay = time.Duration(cfg.System.RetryDelaySec * float64(time.Second))
	}
	applyEnv(cfg)
	cfg.normalize()
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(envStartDate); v != "" {
		cfg.Data.StartDate = v
	}
	if v := os.Getenv(envEndDate); v != "" {
		cfg.Data.EndDate = v
	}
	if v := os.Getenv(envMaxWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.System.MaxWorkers = n
		}
	}
	if v := os.Getenv(envChunkSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.System.ChunkSize = n
		}
	}
	if v := os.Getenv(envMemoryLimit); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.System.MemoryLimit = n
		}
	}
	if v := os.Getenv(envCacheDir); v != "" {
		cfg.System.CacheDir = v
	}
	if v := os.Getenv(envRetryTimes); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.System.RetryTimes = n
		}
	}
}

// normalize 兜底非法值，保证运行期不因配置崩溃。
func (c *Config) normalize() {
	if c.System.MaxWorkers <= 0 {
		c.System.MaxWorkers = defaultMaxWorkers
	}
	if c.System.ChunkSize <= 0 {
		c.System.ChunkSize = defaultChunkSize
	}
	if c.System.RetryTimes <= 0 {
		c.System.RetryTimes = defaultRetryTimes
	}
	if c.System.RetryDelay <= 0 {
		c.System.RetryDelay = defaultRetryDelay
	}
	if c.System.CacheDir == "" {
		c.System.CacheDir = defaultCacheDir
	}
	if c.Data.MinDataLength <= 0 {
		c.Data.MinDataLength = defaultMinDataLength
	}
	if c.Technical.RecentDays <= 0 {
		c.Technical.RecentDays = defaultRecentDays
	}
	if len(c.Technical.MovingAverages) == 0 {
		c.Technical.MovingAverages = Default().Technical.MovingAverages
	}
}

// LongestMAPeriod 返回配置中最长的均线周期，五线谱要求的最少数据量。
func (c *Config) LongestMAPeriod() int {
	longest := 0
	for _, p := range c.Technical.MovingAverages {
		if p > longest {
			longest = p
		}
	}
	return longest
}

// CacheKey 由日期窗口派生：窗口相同跨运行复用，窗口不同互不干扰。
func (c *Config) CacheKey() string {
	return c.Data.StartDate + "_" + c.Data.EndDate
}

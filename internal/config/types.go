package config

// Category identifies an asset category in the path set.
type Category string

const (
	CategoryStyles  Category = "styles"
	CategoryImages  Category = "images"
	CategoryScripts Category = "scripts"
	CategoryMarkup  Category = "markup"
)

// PathConfig is one entry of the path set. Source is a glob relative to the
// source base (or to the dist base when InDist is set); Dest is a directory
// relative to the dist base.
type PathConfig struct {
	Source string `json:"source" toml:"source" yaml:"source"`
	Dest   string `json:"dest,omitempty" toml:"dest,omitempty" yaml:"dest,omitempty"`
	InDist bool   `json:"in_dist,omitempty" toml:"in_dist,omitempty" yaml:"in_dist,omitempty"`
}

// PathsConfig holds the source/destination bases and the per-category entries.
// Category entries from a config file replace the default entry wholesale.
type PathsConfig struct {
	SrcBase    string                `json:"src_base" toml:"src_base" yaml:"src_base"`
	DistBase   string                `json:"dist_base" toml:"dist_base" yaml:"dist_base"`
	Categories map[string]PathConfig `json:"categories" toml:"categories" yaml:"categories"`
}

// StylesConfig configures the stylesheet compiler and post-processor.
type StylesConfig struct {
	SassBinary   string   `json:"sass_binary" toml:"sass_binary" yaml:"sass_binary"`
	IncludePaths []string `json:"include_paths,omitempty" toml:"include_paths,omitempty" yaml:"include_paths,omitempty"`
	Targets      []string `json:"targets,omitempty" toml:"targets,omitempty" yaml:"targets,omitempty"` // esbuild engine targets, e.g. "chrome58", "ios8"
}

// ImagesConfig configures the image compressor and the WebP converter.
type ImagesConfig struct {
	JPEGQuality    int    `json:"jpeg_quality" toml:"jpeg_quality" yaml:"jpeg_quality"`
	WebPQuality    int    `json:"webp_quality" toml:"webp_quality" yaml:"webp_quality"`
	PNGQuantBinary string `json:"pngquant_binary,omitempty" toml:"pngquant_binary,omitempty" yaml:"pngquant_binary,omitempty"` // empty disables lossy PNG
	CWebPBinary    string `json:"cwebp_binary" toml:"cwebp_binary" yaml:"cwebp_binary"`
	SkipWebP       bool   `json:"skip_webp,omitempty" toml:"skip_webp,omitempty" yaml:"skip_webp,omitempty"`
	Workers        int    `json:"workers" toml:"workers" yaml:"workers"`
}

// ScriptsConfig configures the script minifier.
type ScriptsConfig struct {
	KeepLegalComments bool `json:"keep_legal_comments,omitempty" toml:"keep_legal_comments,omitempty" yaml:"keep_legal_comments,omitempty"`
}

// CleanConfig lists the paths, relative to the dist base, removed before a build.
type CleanConfig struct {
	Targets []string `json:"targets" toml:"targets" yaml:"targets"`
}

// ServerConfig configures the dev server.
type ServerConfig struct {
	Host          string `json:"host" toml:"host" yaml:"host"`
	Port          int    `json:"port" toml:"port" yaml:"port"`
	DisableInject bool   `json:"disable_inject,omitempty" toml:"disable_inject,omitempty" yaml:"disable_inject,omitempty"`
}

// WatchConfig configures the watch registrar.
type WatchConfig struct {
	DebounceMillis int `json:"debounce_ms" toml:"debounce_ms" yaml:"debounce_ms"`
	SuppressMillis int `json:"suppress_ms" toml:"suppress_ms" yaml:"suppress_ms"` // self-write suppression window for reload-only bindings
}

// NotifyConfig configures the failure/done notification sinks.
type NotifyConfig struct {
	Desktop bool   `json:"desktop" toml:"desktop" yaml:"desktop"`
	Command string `json:"command,omitempty" toml:"command,omitempty" yaml:"command,omitempty"` // overrides the platform notifier binary
}

// HistoryConfig configures the build history store.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
	Path    string `json:"path" toml:"path" yaml:"path"`
}

// Config is the top-level configuration.
type Config struct {
	Paths     PathsConfig   `json:"paths" toml:"paths" yaml:"paths"`
	MinSuffix string        `json:"min_suffix" toml:"min_suffix" yaml:"min_suffix"`
	Styles    StylesConfig  `json:"styles" toml:"styles" yaml:"styles"`
	Images    ImagesConfig  `json:"images" toml:"images" yaml:"images"`
	Scripts   ScriptsConfig `json:"scripts" toml:"scripts" yaml:"scripts"`
	Clean     CleanConfig   `json:"clean" toml:"clean" yaml:"clean"`
	Server    ServerConfig  `json:"server" toml:"server" yaml:"server"`
	Watch     WatchConfig   `json:"watch" toml:"watch" yaml:"watch"`
	Notify    NotifyConfig  `json:"notify" toml:"notify" yaml:"notify"`
	History   HistoryConfig `json:"history" toml:"history" yaml:"history"`
	LogLevel  string        `json:"log_level" toml:"log_level" yaml:"log_level"`
}

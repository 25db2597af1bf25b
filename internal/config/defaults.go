package config

// DefaultConfig returns the default configuration: the ../src and ../dist
// layout with sass, images and js categories plus dist markup.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			SrcBase:  "../src",
			DistBase: "../dist",
			Categories: map[string]PathConfig{
				string(CategoryStyles):  {Source: "sass/**/*.scss", Dest: "css"},
				string(CategoryImages):  {Source: "images/**/*", Dest: "images"},
				string(CategoryScripts): {Source: "js/**/*.js", Dest: "js"},
				string(CategoryMarkup):  {Source: "**/*.html", InDist: true},
			},
		},
		MinSuffix: ".min",
		Styles: StylesConfig{
			SassBinary:   "sass",
			IncludePaths: []string{"src/sass"},
			Targets:      []string{"chrome58", "edge16", "firefox57", "ie11", "ios8", "safari11"},
		},
		Images: ImagesConfig{
			JPEGQuality:    80,
			WebPQuality:    75,
			PNGQuantBinary: "pngquant",
			CWebPBinary:    "cwebp",
			Workers:        4,
		},
		Clean: CleanConfig{
			Targets: []string{"css/style.css", "css/style.css.map", "images/"},
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 3000,
		},
		Watch: WatchConfig{
			DebounceMillis: 150,
			SuppressMillis: 1000,
		},
		Notify: NotifyConfig{
			Desktop: true,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".assetpipe/history.db",
		},
		LogLevel: "info",
	}
}

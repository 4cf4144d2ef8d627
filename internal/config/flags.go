package config

import "github.com/spf13/pflag"

// Flags holds command-line overrides. Zero values mean "not set".
type Flags struct {
	Config       string
	Debug        bool
	LogFile      string
	NormalMode   string
	SearchPaths  []string
	TextureRoots []string
	NoCache      bool
}

// RegisterFlags binds the shared flags to fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVarP(&f.Config, "config", "c", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "Also write logs to this file (rotated)")
	fs.StringVar(&f.NormalMode, "normals", "", "Normal transform: affine or inverse-transpose")
	fs.StringSliceVarP(&f.SearchPaths, "search-path", "I", nil, "Model search directory (repeatable, searched first)")
	fs.StringSliceVar(&f.TextureRoots, "texture-root", nil, "Texture root directory (repeatable, searched first)")
	fs.BoolVar(&f.NoCache, "no-cache", false, "Disable the scene cache")
	return f
}

// apply applies flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.NormalMode != "" {
		cfg.Loader.NormalMode = f.NormalMode
	}
	if len(f.SearchPaths) > 0 {
		cfg.Assets.SearchPaths = append(append([]string(nil), f.SearchPaths...), cfg.Assets.SearchPaths...)
	}
	if len(f.TextureRoots) > 0 {
		cfg.Assets.TextureRoots = append(append([]string(nil), f.TextureRoots...), cfg.Assets.TextureRoots...)
	}
	if f.NoCache {
		cfg.Assets.CacheScenes = false
	}
}

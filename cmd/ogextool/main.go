// ogextool is a CLI utility for inspecting OpenGEX scene files.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-ogex/internal/assets"
	"github.com/Faultbox/midgard-ogex/internal/config"
	"github.com/Faultbox/midgard-ogex/internal/logger"
	"github.com/Faultbox/midgard-ogex/internal/texture"
	"github.com/Faultbox/midgard-ogex/pkg/opengex"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "models", "ls":
		cmdModels(args)
	case "materials", "mat":
		cmdMaterials(args)
	case "textures", "tex":
		cmdTextures(args)
	case "anim":
		cmdAnim(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	logger.Sync()
}

func printUsage() {
	fmt.Println(`ogextool - OpenGEX scene inspection utility

Usage:
  ogextool <command> [options] <model>...

Commands:
  info <model>...          Show scene summary and diagnostics
  models <model>           List baked models
  materials <model>        List materials and their textures
  textures <model>         Resolve (and optionally decode) diffuse textures
  anim <model>             Show animation tracks
  config                   Print or save the effective configuration

Common options:
  -c, --config <file>      Config file (default ./ogextool.yaml or user config dir)
  -I, --search-path <dir>  Model search directory (repeatable)
      --texture-root <dir> Texture root directory (repeatable)
      --normals <mode>     affine or inverse-transpose
      --debug              Enable debug logging
      --log-file <file>    Also write logs to a rotated file

Examples:
  ogextool info scenes/crate.ogex
  ogextool models -I assets/models crate
  ogextool textures --decode --texture-root assets crate
  ogextool config --save ./ogextool.yaml
  ogextool config --save-user --normals inverse-transpose`)
}

// env is the state shared by every command.
type env struct {
	cfg     *config.Config
	manager *assets.Manager
	cache   *assets.Cache // nil when caching is disabled
}

// setup parses args, loads config, initializes logging and builds the
// asset manager.
func setup(name string, args []string, extra func(*pflag.FlagSet)) (*env, *pflag.FlagSet) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	_ = fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.LogFile)

	var cache *assets.Cache
	if cfg.Assets.CacheScenes {
		cache = assets.NewCache()
	}
	m := assets.NewManager(logger.Log, cache, opengex.WithNormalMode(cfg.NormalMode()))
	for _, dir := range cfg.Assets.SearchPaths {
		m.AddSearchPath(dir)
	}
	for _, dir := range cfg.Assets.TextureRoots {
		m.AddTextureRoot(dir)
	}
	return &env{cfg: cfg, manager: m, cache: cache}, fs
}

// load loads one model or exits.
func (e *env) load(name string) (*opengex.Scene, string) {
	start := time.Now()
	scene, path, err := e.manager.Load(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Log.Debug("loaded scene", zap.String("path", path), zap.Duration("took", time.Since(start)))
	return scene, path
}

func requireModel(fs *pflag.FlagSet, usage string) {
	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: ogextool %s\n", usage)
		os.Exit(1)
	}
}

func cmdInfo(args []string) {
	var strict bool
	e, fs := setup("info", args, func(fs *pflag.FlagSet) {
		fs.BoolVar(&strict, "strict", false, "Exit with status 2 if any scene has diagnostics")
	})
	requireModel(fs, "info <model>...")

	failed := false
	for i, name := range fs.Args() {
		if i > 0 {
			fmt.Println()
		}
		scene, path := e.load(name)

		size := "?"
		if info, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}

		fmt.Printf("Scene:      %s (%s)\n", path, size)
		fmt.Printf("Up axis:    %s\n", scene.Metric.Up)
		if scene.Metric.Forward != "" {
			fmt.Printf("Forward:    %s\n", scene.Metric.Forward)
		}
		fmt.Printf("Distance:   %g\n", scene.Metric.Distance)
		fmt.Printf("Models:     %d\n", len(scene.Models))
		fmt.Printf("Vertices:   %s\n", humanize.Comma(int64(scene.TotalVertexCount())))
		fmt.Printf("Indices:    %s\n", humanize.Comma(int64(scene.TotalIndexCount())))
		fmt.Printf("Materials:  %d\n", len(scene.Materials))
		fmt.Printf("Animated:   %t\n", scene.HasAnimation())

		if len(scene.Diagnostics) > 0 {
			failed = true
			fmt.Printf("Diagnostics (%d):\n", len(scene.Diagnostics))
			for _, d := range scene.Diagnostics {
				fmt.Printf("  %v\n", d)
			}
		}
	}

	if e.cache != nil && fs.NArg() > 1 {
		hits, misses := e.cache.Stats()
		fmt.Printf("\nCache: %d scenes, %d hits, %d misses\n", e.cache.Len(), hits, misses)
	}

	if strict && failed {
		logger.Sync()
		os.Exit(2)
	}
}

func cmdModels(args []string) {
	var limit int
	e, fs := setup("models", args, func(fs *pflag.FlagSet) {
		fs.IntVarP(&limit, "limit", "n", 0, "Limit output to N models (0 = all)")
	})
	requireModel(fs, "models <model>")

	scene, _ := e.load(fs.Arg(0))
	fmt.Printf("%-24s %-16s %10s %10s %8s  %s\n", "NAME", "MESH", "VERTICES", "INDICES", "UVS", "MATERIAL")
	for i, m := range scene.Models {
		if limit > 0 && i >= limit {
			fmt.Fprintf(os.Stderr, "\n(%d of %d models shown)\n", limit, len(scene.Models))
			break
		}
		material := m.MaterialRef
		if material == "" {
			material = "-"
		}
		fmt.Printf("%-24s %-16s %10s %10s %8s  %s\n",
			m.Name, m.Mesh,
			humanize.Comma(int64(len(m.Vertices))),
			humanize.Comma(int64(len(m.Indices))),
			humanize.Comma(int64(len(m.TexCoords))),
			material)
	}
}

func cmdMaterials(args []string) {
	e, fs := setup("materials", args, nil)
	requireModel(fs, "materials <model>")

	scene, _ := e.load(fs.Arg(0))
	for _, mat := range scene.Materials {
		name := mat.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("$%s  %s\n", mat.Ref, name)
		fmt.Printf("  diffuse color:  %.3f %.3f %.3f\n", mat.DiffuseColor[0], mat.DiffuseColor[1], mat.DiffuseColor[2])
		if mat.SpecularPower != 0 {
			fmt.Printf("  specular:       %.3f %.3f %.3f (power %g)\n",
				mat.SpecularColor[0], mat.SpecularColor[1], mat.SpecularColor[2], mat.SpecularPower)
		}
		for _, tex := range mat.Textures {
			fmt.Printf("  %-9s %s\n", tex.Attrib.String()+":", tex.Path)
		}
	}
}

func cmdTextures(args []string) {
	var decode bool
	e, fs := setup("textures", args, func(fs *pflag.FlagSet) {
		fs.BoolVar(&decode, "decode", false, "Decode each texture and report its dimensions")
	})
	requireModel(fs, "textures <model>")

	scene, path := e.load(fs.Arg(0))
	missing := 0
	for i, dt := range scene.DiffuseTextures() {
		ref := scene.Materials[i].Ref
		if dt.Path == "" {
			fmt.Printf("$%-16s (no diffuse texture, color %.3f %.3f %.3f)\n", ref, dt.Color[0], dt.Color[1], dt.Color[2])
			continue
		}

		resolved, ok := e.manager.ResolveTexture(path, dt.Path)
		if !ok {
			missing++
			fmt.Printf("$%-16s %s  MISSING\n", ref, dt.Path)
			continue
		}

		detail := ""
		if info, err := os.Stat(resolved); err == nil {
			detail = humanize.Bytes(uint64(info.Size()))
		}
		if decode {
			img, err := texture.Open(resolved)
			if err != nil {
				detail += "  decode error: " + err.Error()
			} else {
				rgba := texture.ToRGBA(img)
				b := rgba.Bounds()
				alpha := "opaque"
				if !rgba.Opaque() {
					alpha = "alpha"
				}
				detail += fmt.Sprintf("  %dx%d %s", b.Dx(), b.Dy(), alpha)
			}
		}
		fmt.Printf("$%-16s %s -> %s  %s\n", ref, dt.Path, resolved, strings.TrimSpace(detail))
	}

	if missing > 0 {
		fmt.Fprintf(os.Stderr, "\n(%d textures not found)\n", missing)
	}
}

func cmdAnim(args []string) {
	e, fs := setup("anim", args, nil)
	requireModel(fs, "anim <model>")

	scene, _ := e.load(fs.Arg(0))
	if !scene.HasAnimation() {
		fmt.Println("No animation.")
		return
	}

	for _, m := range scene.Models {
		if len(m.Animation.Tracks) == 0 {
			continue
		}
		fmt.Printf("%s  [%g .. %g]\n", m.Name, m.Animation.Begin, m.Animation.End)
		for _, tr := range m.Animation.Tracks {
			fmt.Printf("  %-10s time %-7s %3d keys   value %-7s %3d keys\n",
				tr.Target, tr.Time.Type, len(tr.Time.Keys), tr.Value.Type, len(tr.Value.Keys))
		}
	}
}

func cmdConfig(args []string) {
	var savePath string
	var saveUser bool
	e, _ := setup("config", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&savePath, "save", "", "Write the effective config to this path")
		fs.BoolVar(&saveUser, "save-user", false, "Write the effective config to the user config directory")
	})

	if saveUser {
		if err := e.cfg.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Saved config to %s\n", config.ConfigDir())
		return
	}

	if savePath != "" {
		if err := e.cfg.SaveTo(savePath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Saved config to %s\n", savePath)
		return
	}

	data, err := e.cfg.Marshal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(data))
}

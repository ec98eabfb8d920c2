// Command oxypipe imports 3D assets into a scene and converts them between formats.
//
// Usage:
//
//	oxypipe import [-config file] <path>...            # import and print what was loaded
//	oxypipe convert [-config file] -o out.glb <path>... # import and export the scene as one file
//	oxypipe watch [-config file] -dir in -out out       # convert every asset dropped into a folder
//	oxypipe version
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxypipe/config"
	"github.com/Carmen-Shannon/oxypipe/engine"
)

var (
	Version   = engine.Version
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(os.Args[2:])
	case "convert":
		err = runConvert(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig parses args with the shared -config flag and loads the configuration.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*configPath)
}

func printVersion() {
	fmt.Printf("oxypipe %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`oxypipe - 3D asset pipeline

Usage:
  oxypipe <command> [flags]

Commands:
  import   import assets and print the loaded results
  convert  import assets and export the scene to one file
  watch    convert assets dropped into a folder
  version  print version information

Environment variables prefixed with OXYPIPE_ override the config file,
e.g. OXYPIPE_LOG_LEVEL=debug or OXYPIPE_STORAGE_DRIVER=redis.`)
}

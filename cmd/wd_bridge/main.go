// Command wd_bridge mounts a Western Digital MyCloud device as a local
// POSIX filesystem.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/sbencoding/wd_bridge/cmd/common"
	"github.com/sbencoding/wd_bridge/fs"
	"github.com/sbencoding/wd_bridge/remote"
)

func usage() {
	fmt.Printf(`wd_bridge - mount a Western Digital MyCloud device as a filesystem.

Usage: wd_bridge -f <mount_point> -ouser=<username>,pass=<password>,host=<device_id>

Valid options:
`)
	flag.PrintDefaults()
}

// subopts parses the comma-separated key=value suboption string carried by
// -o, the same FUSE-style convention spec.md §6 specifies.
func subopts(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	mountPoint := flag.StringP("mount", "f", "", "Mount point.")
	options := flag.StringP("options", "o", "", "Comma-separated user=,pass=,host= suboptions.")
	logLevel := flag.StringP("log", "l", "", "Set logging level/verbosity. "+
		"Can be one of: "+strings.Join(common.LogLevels(), ", "))
	configPath := flag.StringP("config", "c", common.DefaultConfigPath(),
		"A YAML-formatted configuration file used by wd_bridge.")
	versionFlag := flag.BoolP("version", "v", false, "Display program version.")
	debugOn := flag.BoolP("debug", "d", false, "Enable FUSE debug logging.")
	help := flag.BoolP("help", "h", false, "Displays this help message.")
	flag.Usage = usage
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Println("wd_bridge", common.Version())
		os.Exit(0)
	}

	config := common.LoadConfig(*configPath)
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	zerolog.SetGlobalLevel(common.StringToLevel(config.LogLevel))
	if err := config.WriteConfig(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("could not persist configuration file")
	}

	if *mountPoint == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\n-f/--mount is required.")
		os.Exit(1)
	}
	st, err := os.Stat(*mountPoint)
	if err != nil || !st.IsDir() {
		log.Error().Str("mountpoint", *mountPoint).Msg("mountpoint did not exist or was not a directory")
		os.Exit(1)
	}

	opts := subopts(*options)
	username, pass, host := opts["user"], opts["pass"], opts["host"]
	if username == "" || pass == "" || host == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\n-ouser=,pass=,host= are all required.")
		os.Exit(1)
	}

	client := remote.NewClient(config.RequestTimeout)

	loginResult := client.Login(username, pass)
	if loginResult.IsFailed() {
		log.Error().Err(loginResult.Err()).Msg("login failed")
		os.Exit(1)
	}
	client.SetSession(loginResult.Value())

	endpointResult := client.DetectEndpoint(host)
	if endpointResult.IsFailed() {
		log.Error().Err(endpointResult.Err()).Msg("endpoint detection failed")
		os.Exit(1)
	}
	client.SetEndpoint(endpointResult.Value())

	log.Info().Msgf("wd_bridge %s", common.Version())
	filesystem := fs.NewFilesystem(client)

	server, err := gofs.Mount(*mountPoint, filesystem.Root(), &gofs.Options{
		MountOptions: fuse.MountOptions{
			Name:          "wd_bridge",
			FsName:        "wd_bridge",
			DisableXAttrs: true,
			MaxBackground: 1024,
			Debug:         *debugOn,
		},
	})
	if err != nil {
		log.Error().Err(err).Msgf("mount failed; is the mountpoint already in use? "+
			"(try running \"fusermount3 -uz %s\")", *mountPoint)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go fs.UnmountHandler(sigChan, server, filesystem)

	log.Info().Str("mountpoint", *mountPoint).Msg("serving filesystem")
	server.Serve()
}

// Command device_locator enumerates the MyCloud devices registered to a
// user's account, grounded bit-exact on
// original_source/src/device_locator.cpp.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sbencoding/wd_bridge/remote"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "Error: too few arguments given")
		fmt.Fprintln(os.Stderr, "Usage: device_locator [user] [pass]")
		os.Exit(1)
	}
	username, password := os.Args[1], os.Args[2]

	fmt.Println("Enumerating devices... please wait!")

	client := remote.NewClient(0)

	loginResult := client.Login(username, password)
	if loginResult.IsFailed() {
		fmt.Fprintln(os.Stderr, "Login failed... shutting down")
		os.Exit(1)
	}
	session := loginResult.Value()
	client.SetSession(session)

	userIDResult := client.UserID(session.AccessToken)
	if userIDResult.IsFailed() {
		fmt.Fprintln(os.Stderr, "User ID lookup failed")
		os.Exit(1)
	}

	devicesResult := client.UserDevices(userIDResult.Value())
	if devicesResult.IsFailed() {
		fmt.Fprintln(os.Stderr, "Device enumeration failed")
		os.Exit(1)
	}

	fmt.Println("Listing devices for user:")
	for i, device := range devicesResult.Value() {
		fmt.Printf("[%d] %s (%s)\n", i, device.Name, device.ID)
	}
}

package cmd

// Version is the application version, intended to be set at build time:
//
//	go build -ldflags "-X github.com/xkilldash9x/scripthound/cmd.Version=1.0.0"
var Version = "1.0"

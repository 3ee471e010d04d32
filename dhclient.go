package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wirelab/dhclient/configuration"
	"github.com/wirelab/dhclient/dhcp"
)

var stopped chan bool

func main() {
	fmt.Println("dhclient v0.0.0")

	var configFileName string
	var ifaceName string
	flag.StringVar(&configFileName, "config", "/etc/dhclient.conf.yaml", "where to load the config from")
	flag.StringVar(&ifaceName, "i", "", "interface to run on (overrides the config)")
	flag.Parse()

	config, err := configuration.ReadConfig(configFileName)
	if err != nil {
		log.Fatalln("Unable to load configuration.", configFileName, err)
	} else {
		log.Printf("Config loaded successfully from '%s'.", configFileName)
	}

	if ifaceName == "" {
		ifaceName = config.Interface
	}
	if ifaceName == "" {
		log.Fatalln("No interface given. Set 'interface' in the config or pass -i.")
	}

	d, err := dhcp.NewDaemon(&config, ifaceName)
	if err != nil {
		log.Fatalln("Unable to start.", err)
	}
	setupShutdownHandler(d.Shutdown)

	d.Start()

	if err := d.Wait(); err != nil {
		log.Fatalln("Client stopped.", err)
	}

	<-stopped
}

func setupShutdownHandler(shutdown func()) {
	stopped = make(chan bool)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("Shutting down.")

		shutdown()

		log.Println("Bye 👋")
		stopped <- true
	}()

	log.Println("Quit with CTRL+C.")
}

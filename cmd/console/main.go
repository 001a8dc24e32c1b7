package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/inertial_streamer/internal/app"
	"github.com/relabs-tech/inertial_streamer/internal/config"
)

func main() {
	configPath := flag.String("config", "inertial_config.txt", "path to configuration file")
	addr := flag.String("addr", "", "streamer host:port (default: SERVER_HOST:SERVER_PORT from config)")
	useMQTT := flag.Bool("mqtt", false, "subscribe to the MQTT mirror instead of the TCP stream")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Printf("config: %v; using defaults", err)
		config.InitDefault()
	}
	cfg := config.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *useMQTT {
		if cfg.MQTTBroker == "" {
			log.Fatalf("MQTT_BROKER is not set in %s", *configPath)
		}
		err = app.RunConsoleMQTT(ctx, cfg.MQTTBroker, cfg.MQTTClientID+"-console", cfg.TopicSample, os.Stdout)
	} else {
		target := *addr
		if target == "" {
			target = cfg.ServerAddr()
		}
		err = app.RunConsole(ctx, target, os.Stdout)
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

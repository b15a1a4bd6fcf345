/*
File Name:  main.go
Author:     Eastsea Contributors

The node binary: loads configuration, brings up the TCP hub and every
configured discovery subsystem, wires the auto-discovery controller
between them, and runs until interrupted. Grounded on the teacher's
top-level Init()/main wiring shape (load config, open stores, start
networks, block on a signal channel), adapted to this module's single
TCP hub plus its own discovery subsystems instead of the teacher's
multi-network UDP model.
*/

package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	eastsea "github.com/kjaylee/eastsea-node-sub000"
	"github.com/kjaylee/eastsea-node-sub000/autodiscovery"
	"github.com/kjaylee/eastsea-node-sub000/bootstrap"
	"github.com/kjaylee/eastsea-node-sub000/dht"
	"github.com/kjaylee/eastsea-node-sub000/localdiscovery"
	"github.com/kjaylee/eastsea-node-sub000/nat"
	"github.com/kjaylee/eastsea-node-sub000/nodeid"
	"github.com/kjaylee/eastsea-node-sub000/tracker"
	"github.com/kjaylee/eastsea-node-sub000/upnp"
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to the YAML configuration file")
	blacklistDir := flag.String("blacklist-db", "", "directory for the persistent node blacklist (disabled if empty)")
	flag.Parse()

	cfg, status, err := eastsea.LoadConfig(*configFile)
	if err != nil {
		log.Printf("eastsea: loading config: %v", err)
		os.Exit(status)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("eastsea: opening log file: %v", err)
		os.Exit(eastsea.ExitErrorLogInit)
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	localID, err := nodeid.Random()
	if err != nil {
		log.Printf("eastsea: generating node ID: %v", err)
		os.Exit(eastsea.ExitErrorNodeIDCreate)
	}

	blacklist, err := eastsea.NewBlacklist(*blacklistDir)
	if err != nil {
		log.Printf("eastsea: opening blacklist: %v", err)
		os.Exit(eastsea.ExitErrorNodeIDCreate)
	}
	defer blacklist.Close()

	hub := eastsea.NewHub([32]byte(localID))
	hub.SetBlacklist(blacklist)

	boundPort, err := hub.Start(cfg.ListenPort)
	if err != nil {
		log.Printf("eastsea: binding node hub: %v", err)
		os.Exit(eastsea.ExitErrorHubBind)
	}
	log.Printf("eastsea: node %s listening on port %d", localID, boundPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.AcceptLoop(ctx)

	overlay := dht.NewOverlay(localID)

	bootstrapClient := &bootstrap.Client{
		Connector:    hubBootstrapConnector{hub},
		Broadcaster:  hub,
		LocalAddress: cfg.ListenAddress,
		LocalPort:    uint16(boundPort),
		Seeds:        cfg.BootstrapSeeds,
	}
	bootstrapServer := bootstrap.NewServer(bootstrap.DefaultMaxPeers, hubBootstrapConnector{hub})
	hub.RegisterHandler(bootstrap.MsgPeerListRequest, wrapBootstrapHandler(bootstrapServer.HandlePeerListRequest))
	hub.RegisterHandler(bootstrap.MsgNodeAnnouncement, wrapBootstrapHandler(bootstrapServer.HandleNodeAnnouncement))
	hub.RegisterHandler(bootstrap.MsgPeerListResponse, wrapBootstrapHandler(bootstrapClient.HandlePeerListResponse))

	if err := bootstrapClient.Bootstrap(ctx); err != nil {
		log.Printf("eastsea: bootstrap: %v", err)
	}

	controller := autodiscovery.NewController()
	controller.Overlay = overlay
	controller.Bootstrap = bootstrapClient
	controller.Connector = hubAutoDiscoveryConnector{hub}
	controller.MaxPeers = cfg.AutoDiscovery.MaxPeers

	var announcer *localdiscovery.BroadcastAnnouncer
	if cfg.Discovery.Broadcast {
		announcer = localdiscovery.NewBroadcastAnnouncer(localID, uint16(boundPort), 0)
		if err := announcer.Listen(); err != nil {
			log.Printf("eastsea: broadcast listen: %v", err)
		} else {
			go announcer.Serve(ctx)
			go periodicAnnounce(ctx, announcer)
			controller.Announcer = announcer
		}
	}

	features := byte(eastsea.FeatureIPv4Listen)

	if cfg.Discovery.MDNS {
		mdnsAnnouncer, err := localdiscovery.NewMDNSAnnouncer(cfg.ListenAddress, uint16(boundPort))
		if err != nil {
			log.Printf("eastsea: mdns init: %v", err)
		} else {
			mdnsAnnouncer.Join()
			if err := mdnsAnnouncer.JoinV6(); err != nil {
				log.Printf("eastsea: mdns ipv6 join: %v", err)
			} else {
				features |= eastsea.FeatureIPv6Listen
			}
			go periodicMDNS(ctx, mdnsAnnouncer)
		}
	}

	hub.SetFeatures(features)

	if cfg.Discovery.PortScan {
		controller.Scanner = localdiscovery.NewScanner()
		controller.ScanHosts = cfg.ScanHosts
		controller.ScanPorts = cfg.ScanPorts
	}

	if cfg.Discovery.STUN {
		if binding, err := nat.StunBindingRequest(); err != nil {
			log.Printf("eastsea: stun binding: %v", err)
		} else {
			log.Printf("eastsea: stun-reflexive address %s:%d", binding.IP, binding.Port)
		}
	}

	if cfg.Discovery.UPnP {
		setupUPnP(uint16(boundPort))
	}

	var trackerServer *tracker.Server
	if cfg.TrackerListen != "" {
		trackerServer = tracker.NewServer(tracker.DefaultMaxPeers, tracker.DefaultTimeout)
		go func() {
			if err := trackerServer.Serve(cfg.TrackerListen); err != nil {
				log.Printf("eastsea: tracker server: %v", err)
			}
		}()
	}

	if cfg.Discovery.Tracker {
		for _, trackerAddr := range cfg.TrackerSeeds {
			client := &tracker.Client{Address: trackerAddr, NodeID: localID, Port: uint16(boundPort)}
			if err := client.Announce(); err != nil {
				log.Printf("eastsea: announcing to tracker %s: %v", trackerAddr, err)
			}
		}
	}

	controller.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("eastsea: shutting down")

	if err := controller.Stop(); err != nil {
		log.Printf("eastsea: stopping auto-discovery controller: %v", err)
	}
	if announcer != nil {
		announcer.Goodbye()
		announcer.Close()
	}
	if trackerServer != nil {
		trackerServer.Stop()
	}
	hub.Stop()
	cancel()
}

// periodicAnnounce sends a broadcast announcement every SendInterval until
// ctx is cancelled.
func periodicAnnounce(ctx context.Context, b *localdiscovery.BroadcastAnnouncer) {
	b.Announce()
	ticker := time.NewTicker(localdiscovery.SendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Announce(); err != nil {
				log.Printf("eastsea: broadcast announce: %v", err)
			}
		}
	}
}

// periodicMDNS re-queries the mDNS group every SendInterval until ctx is
// cancelled, sharing the broadcast subsystem's cadence.
func periodicMDNS(ctx context.Context, m *localdiscovery.MDNSAnnouncer) {
	ticker := time.NewTicker(localdiscovery.SendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Query(); err != nil {
				log.Printf("eastsea: mdns query: %v", err)
			}
		}
	}
}

// setupUPnP discovers a local UPnP gateway and maps the node's TCP port,
// logging failures without aborting startup: per spec.md §4.10, UPnP is
// best-effort and never a hard dependency for reachability.
func setupUPnP(port uint16) {
	localIP, err := primaryLocalIP()
	if err != nil {
		log.Printf("eastsea: upnp: could not determine local IP: %v", err)
		return
	}

	gateway, err := upnp.Discover(localIP)
	if err != nil {
		log.Printf("eastsea: upnp discovery: %v", err)
		return
	}

	if _, err := gateway.AddPortMapping("TCP", localIP, port, port, "eastsea node", 0); err != nil {
		log.Printf("eastsea: upnp port mapping: %v", err)
		return
	}
	log.Printf("eastsea: upnp mapped TCP port %d", port)
}

func primaryLocalIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

// hubBootstrapConnector adapts *eastsea.Hub to bootstrap.Connector: the
// hub's Connect returns a *eastsea.Session, which already satisfies
// bootstrap.Sender structurally, so this only needs to widen the return
// type.
type hubBootstrapConnector struct {
	hub *eastsea.Hub
}

func (a hubBootstrapConnector) Connect(ctx context.Context, remote string) (bootstrap.Sender, error) {
	return a.hub.Connect(ctx, remote)
}

func (a hubBootstrapConnector) IsConnected(remote string) bool {
	return a.hub.IsConnected(remote)
}

// hubAutoDiscoveryConnector adapts *eastsea.Hub to autodiscovery.Connector,
// which unlike bootstrap.Connector reports no session value back to the
// caller.
type hubAutoDiscoveryConnector struct {
	hub *eastsea.Hub
}

func (a hubAutoDiscoveryConnector) Connect(ctx context.Context, remote string) error {
	_, err := a.hub.Connect(ctx, remote)
	return err
}

func (a hubAutoDiscoveryConnector) IsConnected(remote string) bool {
	return a.hub.IsConnected(remote)
}

// wrapBootstrapHandler adapts a bootstrap package handler, which expects a
// bootstrap.Sender, to the hub's HandlerFunc, which passes a *eastsea.Session
// (already a bootstrap.Sender structurally).
func wrapBootstrapHandler(fn func(bootstrap.Sender, byte, []byte)) eastsea.HandlerFunc {
	return func(s *eastsea.Session, msgType byte, payload []byte) {
		fn(s, msgType, payload)
	}
}

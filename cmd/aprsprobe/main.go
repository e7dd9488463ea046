// Command aprsprobe connects to an APRS-IS server, applies a filter
// expression, and prints every raw feed line next to what the bridge's
// packet parser makes of it. It is a standalone debugging utility; it never
// posts anything to a tracking server.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"aprsbridge/aprs"

	"github.com/ziutek/telnet"
)

func main() {
	host := flag.String("host", "rotate.aprs.net", "APRS-IS server host")
	port := flag.Int("port", 14580, "APRS-IS server port")
	callsign := flag.String("callsign", "N0CALL", "Login callsign")
	passcode := flag.String("passcode", "-1", "Login passcode (-1 = receive only)")
	filter := flag.String("filter", "", "Server-side filter expression, e.g. b/N0CALL/S53ZO")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = run until EOF)")
	rawOnly := flag.Bool("raw", false, "Print raw lines only, skip parsing")
	flag.Parse()

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	conn, err := telnet.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("connect %s: %v", addr, err)
	}
	defer conn.Close()
	log.Printf("connected to %s", addr)

	login := fmt.Sprintf("user %s pass %s vers aprsprobe 1.0", *callsign, *passcode)
	if *filter != "" {
		login += " filter " + *filter
	}
	if _, err := conn.Write([]byte(login + "\r\n")); err != nil {
		log.Fatalf("login: %v", err)
	}

	deadline := time.Time{}
	if *duration > 0 {
		deadline = time.Now().Add(*duration)
	}

	for {
		if !deadline.IsZero() {
			if time.Now().After(deadline) {
				log.Printf("duration elapsed, closing")
				return
			}
			_ = conn.SetReadDeadline(deadline)
		}
		line, err := conn.ReadString('\n')
		if err != nil {
			log.Printf("read: %v", err)
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		fmt.Printf("RAW  %s\n", line)
		if *rawOnly || line[0] == '#' {
			continue
		}
		pkt, err := aprs.ParsePacket(line)
		if err != nil {
			fmt.Printf("     skip: %v\n", err)
			continue
		}
		fmt.Printf("     %s %s lat=%.5f lon=%.5f", pkt.Src, pkt.Format, pkt.Latitude, pkt.Longitude)
		if pkt.HasSpeed {
			fmt.Printf(" speed=%.1fkm/h", pkt.Speed)
		}
		if pkt.HasCourse {
			fmt.Printf(" course=%d", pkt.Course)
		}
		if pkt.HasAltitude {
			fmt.Printf(" alt=%.0fm", pkt.Altitude)
		}
		if pkt.HasAmbiguity {
			fmt.Printf(" ambiguity=%d", pkt.Ambiguity)
		}
		fmt.Printf(" icon=%s\n", aprs.IconFor(pkt.SymbolTable, pkt.Symbol))
	}
}

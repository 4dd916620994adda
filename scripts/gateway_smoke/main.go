package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"
)

func main() {
	if err := run(); err != nil {
		log.Printf("gateway_smoke: %v", err)
		os.Exit(1)
	}
}

// run identifies against a running gateway and prints the reply to each command.
// Commands come from the remaining arguments, one per argument, or default to a
// small roster check.
func run() error {
	addr := flag.String("addr", "localhost:8201", "gateway address")
	key := flag.String("key", "", "gateway key or signed token")
	timeout := flag.Duration("timeout", 5*time.Second, "timeout per reply")
	flag.Parse()

	commands := flag.Args()
	if len(commands) == 0 {
		commands = []string{"ISONLINE ChanServ", "GETACCESS ChanServ"}
	}

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	roundTrip := func(line string) (string, error) {
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			return "", fmt.Errorf("send: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(*timeout))
		reply, err := r.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		return strings.TrimRight(reply, "\r\n"), nil
	}

	reply, err := roundTrip("IDENTIFY " + *key)
	if err != nil {
		return err
	}
	if reply != "PROCEED" {
		return fmt.Errorf("identify: %s", reply)
	}
	fmt.Println("identified")

	for _, c := range commands {
		if strings.HasPrefix(strings.ToUpper(c), "GENERATEUSERID") {
			if _, err := conn.Write([]byte(c + "\n")); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Printf("%s -> (no reply)\n", c)
			continue
		}
		reply, err := roundTrip(c)
		if err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
		fmt.Printf("%s -> %s\n", c, reply)
	}
	return nil
}

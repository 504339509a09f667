// bench is an interactive command-line tool that talks to a servo
// target over a bench/link serial connection: send a Command, watch
// the Status stream, toggle modes.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"bldcservo/bench/link"
	"bldcservo/servo"
)

var (
	device = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud   = flag.Int("baud", 115200, "Baud rate")
)

func main() {
	flag.Parse()

	fmt.Println("bldcservo bench")
	fmt.Println("===============")

	cfg := link.DefaultConfig(*device)
	cfg.Baud = *baud

	fmt.Printf("connecting to %s...\n", *device)
	port, err := link.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	l := link.New(port)
	defer l.Close()

	fmt.Println("connected. type 'help' for commands, 'quit' to exit.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "quit", "exit", "q":
			fmt.Println("goodbye")
			return
		case "help", "?":
			printHelp()
		case "status":
			pollStatus(l)
		case "stop":
			send(l, servo.CommandData{Mode: servo.Stopped})
		case "position":
			runPosition(l, parts[1:])
		default:
			fmt.Printf("unknown command %q, type 'help'\n", parts[0])
		}
	}
}

func printHelp() {
	fmt.Println("commands:")
	fmt.Println("  status              read and print one Status frame")
	fmt.Println("  position <pos>      command mode=Position, position=<pos>")
	fmt.Println("  stop                command mode=Stopped")
	fmt.Println("  quit                exit")
}

func pollStatus(l *link.Link) {
	st, err := readWithTimeout(l)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
		return
	}
	fmt.Printf("mode=%s fault=%s position=%.4f velocity=%.4f bus=%.2fV temp=%.1fC\n",
		st.Mode, st.Fault, st.UnwrappedPosition, st.Velocity, st.BusVoltage, st.FetTempC)
}

func readWithTimeout(l *link.Link) (servo.Status, error) {
	type result struct {
		st  servo.Status
		err error
	}
	ch := make(chan result, 1)
	go func() {
		st, err := l.ReadStatus()
		ch <- result{st, err}
	}()
	select {
	case r := <-ch:
		return r.st, r.err
	case <-time.After(2 * time.Second):
		return servo.Status{}, fmt.Errorf("timed out waiting for status")
	}
}

func runPosition(l *link.Link, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: position <pos>")
		return
	}
	pos, err := strconv.ParseFloat(args[0], 32)
	if err != nil {
		fmt.Printf("invalid position %q: %v\n", args[0], err)
		return
	}
	cmd := defaultCommand()
	cmd.Mode = servo.Position
	cmd.Position = float32(pos)
	send(l, cmd)
}

func defaultCommand() servo.CommandData {
	nan := float32(math.NaN())
	return servo.CommandData{
		Position: nan, Velocity: nan, StopPosition: nan,
		BoundsMin: nan, BoundsMax: nan, TimeoutS: nan,
		SetPosition: nan, RezeroPosition: nan, MaxTorqueNm: nan,
		KpScale: 1, KdScale: 1,
	}
}

func send(l *link.Link, cmd servo.CommandData) {
	if err := l.SendCommand(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "send error: %v\n", err)
	}
}

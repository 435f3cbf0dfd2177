package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"callhub/internal/client"
	"callhub/internal/core/domain"
)

var errNotInRoom = errors.New("not in a room")

const usage = "commands: mute | unmute | video on|off | approve <id> | deny <id> | end | leave"

func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				out <- line
			}
		}
	}()
	return out
}

func runCommand(conn *client.Conn, manager *client.Manager, line string) error {
	room := manager.RoomID()
	fields := strings.Fields(line)

	switch fields[0] {
	case "help":
		fmt.Println(usage)
		return nil
	case "peers":
		for _, id := range manager.Peers() {
			fmt.Printf("%s\t%d packets\n", id, manager.PacketsReceived(id))
		}
		return nil
	}

	if room == "" {
		return errNotInRoom
	}

	switch {
	case fields[0] == "mute":
		return conn.ToggleAudio(room, false)
	case fields[0] == "unmute":
		return conn.ToggleAudio(room, true)
	case fields[0] == "video" && len(fields) == 2:
		return conn.ToggleVideo(room, fields[1] == "on")
	case fields[0] == "approve" && len(fields) == 2:
		return conn.ApproveJoin(room, domain.ConnectionID(fields[1]))
	case fields[0] == "deny" && len(fields) == 2:
		return conn.DenyJoin(room, domain.ConnectionID(fields[1]))
	case fields[0] == "end":
		return conn.EndCall(room)
	case fields[0] == "leave":
		if err := conn.Leave(room); err != nil {
			return err
		}
		manager.LeaveRoom()
		return nil
	}
	return fmt.Errorf("unknown command %q; %s", line, usage)
}

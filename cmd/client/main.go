package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/omochice/proximity-relay/internal/client"
	"github.com/omochice/proximity-relay/internal/geo"
	"github.com/omochice/proximity-relay/pkg/protocol"
)

const usage = `Commands:
  /freq N               switch to frequency N (0-255)
  /pos LAT LON          report your position
  /room ID [PASSWORD]   join a room
  /leave                leave the current room
  /rooms                list rooms
  /create NAME [PASS]   create a room
  /account              show account details
  /logout               end the session
  quit                  disconnect
Any other line is sent as audio to everyone in range.`

func main() {
	// Parse command-line flags
	serverAddr := flag.String("server", "ws://localhost:8080", "Server URL (e.g., ws://localhost:8080)")
	username := flag.String("username", "", "Account name")
	password := flag.String("password", "", "Password, or session token with -session")
	register := flag.Bool("register", false, "Create the account")
	session := flag.Bool("session", false, "Resume a session instead of using a password")
	flag.Parse()

	if *username == "" {
		log.Fatal("Username is required. Use -username flag")
	}

	c := client.New(*serverAddr, nil)

	// Connect to server
	if err := c.Connect(); err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer c.Disconnect()

	resp, err := c.Login(protocol.LoginRequest{
		Username: *username,
		Password: *password,
		Session:  *session,
		Register: *register,
	})
	if err != nil {
		log.Fatalf("Failed to log in: %v", err)
	}
	log.Printf("Logged in to %s as %s", *serverAddr, resp.Username)
	log.Printf("Session token: %s", resp.Session)

	// Start goroutine to receive and display messages
	go func() {
		for msg := range c.Messages() {
			switch msg.Kind {
			case client.MessageReply:
				fmt.Printf("<%d> %s\n", msg.CommandID, msg.Body)
			case client.MessageAudio:
				fmt.Printf("~ %s\n", msg.Data)
			}
		}
		fmt.Println("*** connection closed ***")
	}()

	// Read from stdin and send commands
	fmt.Println(usage)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if text == "quit" || text == "exit" {
			break
		}

		if err := execute(c, text); err != nil {
			log.Printf("Failed: %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}

	log.Println("Disconnected from server")
}

func execute(c *client.Client, line string) error {
	if !strings.HasPrefix(line, "/") {
		return c.SendAudio([]byte(line))
	}

	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case "/freq":
		if len(args) != 1 {
			return fmt.Errorf("usage: /freq N")
		}
		n, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid frequency %q", args[0])
		}
		return c.SetFrequency(uint8(n))

	case "/pos":
		if len(args) != 2 {
			return fmt.Errorf("usage: /pos LAT LON")
		}
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q", args[0])
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q", args[1])
		}
		return c.SetPosition(geo.Position{Latitude: lat, Longitude: lon})

	case "/room":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: /room ID [PASSWORD]")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid room id %q", args[0])
		}
		var password string
		if len(args) == 2 {
			password = args[1]
		}
		_, err = c.JoinRoom(id, password)
		return err

	case "/leave":
		_, err := c.LeaveRoom()
		return err

	case "/rooms":
		_, err := c.Rooms()
		return err

	case "/create":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: /create NAME [PASSWORD]")
		}
		room := protocol.NewRoom{Name: args[0]}
		if len(args) == 2 {
			room.Password = args[1]
		}
		_, err := c.CreateRoom(room)
		return err

	case "/account":
		_, err := c.Account()
		return err

	case "/logout":
		return c.Logout()

	default:
		return fmt.Errorf("unknown command %s\n%s", fields[0], usage)
	}
}

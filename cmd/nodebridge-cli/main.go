package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nodebridge/nodebridge/pkg/protocol"
)

// CLI is an interactive client for a nodebridge server. It keeps the last
// pending confirmation so dangerous commands can be confirmed (or
// whitelisted) with a single follow-up verb.
type CLI struct {
	codec   *protocol.Codec
	scanner *bufio.Scanner

	pending *pendingCommand
}

type pendingCommand struct {
	cmd     *protocol.Command
	tokenID string
	canWL   bool
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9400", "Server address")
	flag.Parse()

	printBanner()

	fmt.Printf("Connecting to %s...\n", *addr)
	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println("Connected")
	fmt.Println()

	cli := &CLI{
		codec:   protocol.NewCodec(conn, 1<<20),
		scanner: bufio.NewScanner(os.Stdin),
	}

	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()

	cli.run()
}

func printBanner() {
	fmt.Println(`
  _  _         _     ___      _    _
 | \| |___  __| |___| _ )_ _ (_)__| |__ _ ___
 | .' / _ \/ _' / -_) _ \ '_|| / _' / _' / -_)
 |_|\_\___/\__,_\___|___/_|  |_\__,_\__, \___|
                                    |___/
            nodebridge interactive client`)
}

func (cli *CLI) run() {
	for {
		fmt.Print("bridge> ")

		if !cli.scanner.Scan() {
			break
		}
		input := strings.TrimSpace(cli.scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye")
			break
		}

		cli.executeCommand(input)
		fmt.Println()
	}
}

func (cli *CLI) executeCommand(input string) {
	parts := strings.Fields(input)
	verb := strings.ToLower(parts[0])

	switch verb {
	case "help":
		cli.showHelp()

	case "nodes":
		cli.send("query_list_nodes", nil)

	case "commands":
		cli.send("query_list_commands", nil)

	case "session":
		cli.send("query_session_info", nil)

	case "describe":
		if len(parts) < 2 {
			fmt.Println("Usage: describe <node> [pin]")
			return
		}
		params := map[string]any{"node": parts[1], "verbose": true}
		if len(parts) >= 3 {
			params["pin"] = parts[2]
			cli.send("query_describe_pin", params)
		} else {
			cli.send("query_describe_node", params)
		}

	case "find":
		if len(parts) < 3 {
			fmt.Println("Usage: find <node> <name[,alias...]> [input|output]")
			return
		}
		cli.send("graph_find_pin", findParams(parts))

	case "connect", "disconnect", "check":
		if len(parts) < 5 {
			fmt.Printf("Usage: %s <src-node> <src-pin> <dst-node> <dst-pin>\n", verb)
			return
		}
		params := map[string]any{
			"source_node": parts[1], "source_pin": parts[2],
			"target_node": parts[3], "target_pin": parts[4],
		}
		switch verb {
		case "connect":
			cli.send("graph_connect_pins", params)
		case "disconnect":
			cli.send("graph_disconnect_pins", params)
		case "check":
			cli.send("graph_can_connect_pins", params)
		}

	case "break":
		if len(parts) < 3 {
			fmt.Println("Usage: break <node> <pin>")
			return
		}
		cli.send("graph_break_all_links", map[string]any{"node": parts[1], "pin": parts[2]})

	case "split":
		if len(parts) < 3 {
			fmt.Println("Usage: split <node> <pin>")
			return
		}
		cli.send("graph_split_pin", map[string]any{"node": parts[1], "pin": parts[2]})

	case "recombine":
		if len(parts) < 3 {
			fmt.Println("Usage: recombine <node> <sub-pin> [force]")
			return
		}
		params := map[string]any{"node": parts[1], "pin": parts[2]}
		if len(parts) >= 4 && parts[3] == "force" {
			params["force"] = true
		}
		cli.send("graph_recombine_pin", params)

	case "set-default":
		if len(parts) < 4 {
			fmt.Println("Usage: set-default <node> <pin> <json-value>")
			return
		}
		raw := strings.Join(parts[3:], " ")
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			// Bare words are friendlier than forcing quoted JSON strings.
			value = raw
		}
		cli.send("graph_set_pin_default", map[string]any{
			"node": parts[1], "pin": parts[2], "value": value,
		})

	case "get-default":
		if len(parts) < 3 {
			fmt.Println("Usage: get-default <node> <pin>")
			return
		}
		cli.send("graph_get_pin_default", map[string]any{"node": parts[1], "pin": parts[2]})

	case "clear-default":
		if len(parts) < 3 {
			fmt.Println("Usage: clear-default <node> <pin>")
			return
		}
		cli.send("graph_clear_pin_default", map[string]any{"node": parts[1], "pin": parts[2]})

	case "console":
		if len(parts) < 2 {
			fmt.Println("Usage: console <command...>")
			return
		}
		cli.send("console_execute", map[string]any{"command": strings.Join(parts[1:], " ")})

	case "status":
		cli.send("project_status", nil)

	case "save":
		cli.send("project_save", nil)

	case "audit":
		count := 20
		if len(parts) >= 2 {
			if n, err := strconv.Atoi(parts[1]); err == nil {
				count = n
			}
		}
		cli.send("query_audit_tail", map[string]any{"count": count})

	case "confirm":
		cli.resubmit(false)

	case "whitelist":
		cli.resubmit(true)

	case "raw":
		if len(parts) < 2 {
			fmt.Println("Usage: raw <command-type> [json-params]")
			return
		}
		params := map[string]any{}
		if len(parts) >= 3 {
			raw := strings.Join(parts[2:], " ")
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				fmt.Printf("Bad params JSON: %v\n", err)
				return
			}
		}
		cli.send(parts[1], params)

	default:
		fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", verb)
	}
}

// findParams maps the find verb's arguments onto graph_find_pin params.
// A comma-separated second argument becomes an ordered alias list.
func findParams(parts []string) map[string]any {
	params := map[string]any{"node": parts[1]}
	if names := strings.Split(parts[2], ","); len(names) > 1 {
		params["names"] = names
	} else {
		params["name"] = parts[2]
	}
	if len(parts) >= 4 {
		params["direction"] = parts[3]
	}
	return params
}

// send issues one command and renders the result. A PENDING_CONFIRMATION
// reply is remembered so 'confirm' / 'whitelist' can resubmit it.
func (cli *CLI) send(cmdType string, params map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	cmd := &protocol.Command{Type: cmdType, Params: params}

	result, err := cli.roundTrip(cmd)
	if err != nil {
		fmt.Printf("Transport error: %v\n", err)
		os.Exit(1)
	}

	if result.IsPending() {
		cli.pending = &pendingCommand{
			cmd:     cmd,
			tokenID: result.ConfirmationToken,
			canWL:   result.CanWhitelist,
		}
		fmt.Println("Confirmation required.")
		if result.Preview != "" {
			fmt.Printf("  %s\n", result.Preview)
		}
		fmt.Println("  Type 'confirm' to proceed.")
		if result.CanWhitelist {
			fmt.Println("  Type 'whitelist' to proceed and skip future prompts this session.")
		}
		return
	}
	cli.pending = nil
	printResult(result)
}

// resubmit replays the last pending command with its confirmation token.
func (cli *CLI) resubmit(whitelist bool) {
	if cli.pending == nil {
		fmt.Println("Nothing pending confirmation")
		return
	}
	if whitelist && !cli.pending.canWL {
		fmt.Println("This command cannot be whitelisted; use 'confirm'")
		return
	}

	cmd := cli.pending.cmd
	params := make(map[string]any, len(cmd.Params)+2)
	for k, v := range cmd.Params {
		params[k] = v
	}
	params[protocol.ParamConfirmationToken] = cli.pending.tokenID
	if whitelist {
		params[protocol.ParamWhitelistForSession] = true
	}
	cli.pending = nil

	result, err := cli.roundTrip(&protocol.Command{Type: cmd.Type, Params: params})
	if err != nil {
		fmt.Printf("Transport error: %v\n", err)
		os.Exit(1)
	}
	printResult(result)
}

func (cli *CLI) roundTrip(cmd *protocol.Command) (*protocol.Result, error) {
	if err := cli.codec.WriteCommand(cmd); err != nil {
		return nil, err
	}
	return cli.codec.ReadResult()
}

func printResult(result *protocol.Result) {
	if !result.Success {
		fmt.Printf("Error [%s]: %s\n", result.ErrorCode, result.Error)
		return
	}
	if result.Data == nil {
		fmt.Println("OK")
		return
	}
	pretty, err := json.MarshalIndent(result.Data, "", "  ")
	if err != nil {
		fmt.Printf("OK: %v\n", result.Data)
		return
	}
	fmt.Printf("OK\n%s\n", pretty)
}

func (cli *CLI) showHelp() {
	fmt.Print(`
Available Commands:

Inspection:
  nodes                                    List graph nodes
  describe <node> [pin]                    Describe a node or pin
  find <node> <name[,alias...]> [in|out]   Locate a pin
  commands                                 List server command types
  session                                  Show session info
  audit [n]                                Show recent audit entries

Graph editing:
  check <sn> <sp> <tn> <tp>                Test pin compatibility
  connect <sn> <sp> <tn> <tp>              Connect two pins
  disconnect <sn> <sp> <tn> <tp>           Remove one link
  break <node> <pin>                       Break all links on a pin
  split <node> <pin>                       Split a composite pin
  recombine <node> <sub-pin> [force]       Recombine sub-pins
  set-default <node> <pin> <value>         Set a pin default
  get-default <node> <pin>                 Read a pin default
  clear-default <node> <pin>               Clear a pin default

Host:
  console <command...>                     Run a host console command
  status                                   Project status
  save                                     Save the project

Confirmation:
  confirm                                  Confirm the pending command
  whitelist                                Confirm and whitelist for session

Other:
  raw <type> [json-params]                 Send an arbitrary command
  help                                     This help
  exit                                     Quit
`)
}

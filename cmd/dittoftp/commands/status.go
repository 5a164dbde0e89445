package commands

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoftp/internal/cli/output"
	"github.com/marmos91/dittoftp/pkg/config"
)

var (
	statusPidFile string
	statusPort    int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the dittoftp server.

The command checks the PID file and probes the control port with a STAT
command, which the server answers in every session state.

Examples:
  # Check status (port taken from the config file)
  dittoftp status

  # Check status on a specific control port
  dittoftp status --port 2121`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittoftp/dittoftp.pid)")
	statusCmd.Flags().IntVar(&statusPort, "port", 0, "Control port to probe (default: from config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	port := statusPort
	if port == 0 {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			port = config.DefaultPort
		} else {
			port = cfg.Server.Port
		}
	}

	pairs := [][2]string{}

	// Process check via PID file
	pid, running := daemonPid(statusPidFile)
	if running {
		pairs = append(pairs, [2]string{"PID", strconv.Itoa(pid)})
	}

	// Protocol probe: the pre-login STAT reply carries state and session count
	state, sessions, err := probeServer(port)
	if err != nil {
		if running {
			pairs = append(pairs, [2]string{"Status", "process running, control port not answering"})
		} else {
			pairs = append(pairs, [2]string{"Status", "stopped"})
		}
		fmt.Println()
		_ = output.SimpleTable(os.Stdout, pairs)
		fmt.Println()
		return nil
	}

	pairs = append(pairs,
		[2]string{"Status", "running"},
		[2]string{"State", state},
		[2]string{"Control port", strconv.Itoa(port)},
		[2]string{"Active sessions", strconv.Itoa(sessions)},
	)

	fmt.Println()
	_ = output.SimpleTable(os.Stdout, pairs)
	fmt.Println()
	return nil
}

// daemonPid reads the PID file and reports whether that process is alive.
func daemonPid(path string) (int, bool) {
	if path == "" {
		path = GetDefaultPidFile()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}

// probeServer connects to the control port and issues a STAT command.
// Returns the reported supervisor state and active session count.
func probeServer(port int) (string, int, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), 2*time.Second)
	if err != nil {
		return "", 0, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))

	reader := bufio.NewReader(conn)

	// Banner
	if _, err := reader.ReadString('\n'); err != nil {
		return "", 0, err
	}

	if _, err := fmt.Fprintf(conn, "STAT\r\n"); err != nil {
		return "", 0, err
	}

	state := "unknown"
	sessions := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", 0, err
		}
		line = strings.TrimRight(line, "\r\n")

		trimmed := strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(trimmed, "State: "); ok {
			state = v
		}
		if v, ok := strings.CutPrefix(trimmed, "Active sessions: "); ok {
			if n, err := strconv.Atoi(v); err == nil {
				sessions = n
			}
		}

		// Multiline replies end with "211 <text>"
		if strings.HasPrefix(line, "211 ") {
			break
		}
	}

	return state, sessions, nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/kozaktomas/attendance/internal/checkin"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/spf13/cobra"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin <class>",
	Short: "Recognize a face and record attendance",
	Long: `Capture an image, identify the student among the class roster and
record attendance for today.

Capture methods:
  file:<path>        read an image file
  snapshot           fetch a frame from CAPTURE_SNAPSHOT_URL
  snapshot:<url>     fetch a frame from the given camera URL

Example:
  attendance checkin "Math 101" --method file:./door.jpg
  attendance checkin 3 --method snapshot --date 2022-03-15 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckin,
}

func init() {
	rootCmd.AddCommand(checkinCmd)

	checkinCmd.Flags().String("method", "snapshot", "Capture method")
	checkinCmd.Flags().String("date", "", "Attendance day (YYYY-MM-DD, default today)")
	checkinCmd.Flags().String("status", "Present", "Status to record (Present or Absent)")
	checkinCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCheckin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	jsonOutput := mustGetBool(cmd, "json")

	status, err := database.ParseStatus(mustGetString(cmd, "status"))
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := parseDateFlag(mustGetString(cmd, "date"), a.today())
	if err != nil {
		return err
	}
	class, err := resolveClass(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	result, err := orch.Run(ctx, checkin.Request{
		ClassID: class.ID,
		Method:  mustGetString(cmd, "method"),
		Date:    date,
		Status:  status,
	})
	if jsonOutput {
		if outErr := outputJSON(result); outErr != nil {
			return outErr
		}
		return err
	}

	fmt.Printf("Check-in %s: %s\n", result.CheckinID, joinStates(result.Trace))
	if err != nil {
		return fmt.Errorf("check-in failed in %s: %w", result.FailedIn, err)
	}

	student, err := a.store.GetStudent(ctx, result.StudentID)
	if err != nil {
		return err
	}
	fmt.Printf("%s marked %s in %s on %s (distance %.4f)\n",
		student.Name, result.Status, class.Name, result.Date.Format(database.DateLayout), result.MatchScore)
	return nil
}

func joinStates(states []checkin.State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, " -> ")
}

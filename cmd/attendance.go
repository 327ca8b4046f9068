package cmd

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "List and correct attendance records",
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance by class, student or date range",
	Long: `List attendance records ordered by date.

Exactly one of --class, --student or --from must be given. --to defaults
to --from, so a single day can be listed with --from alone.

Example:
  attendance attendance list --class "Math 101"
  attendance attendance list --from 2022-03-01 --to 2022-03-31 --json`,
	Args: cobra.NoArgs,
	RunE: runAttendanceList,
}

var attendanceRecordCmd = &cobra.Command{
	Use:   "record <class> <student>",
	Short: "Record attendance manually",
	Args:  cobra.ExactArgs(2),
	RunE:  runAttendanceRecord,
}

var attendanceSetCmd = &cobra.Command{
	Use:   "set <attendance-id> <Present|Absent>",
	Short: "Change the status of an attendance record",
	Args:  cobra.ExactArgs(2),
	RunE:  runAttendanceSet,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceListCmd, attendanceRecordCmd, attendanceSetCmd)

	attendanceListCmd.Flags().String("class", "", "Class ID or name")
	attendanceListCmd.Flags().String("student", "", "Student ID or name")
	attendanceListCmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	attendanceListCmd.Flags().String("to", "", "Last day (YYYY-MM-DD, inclusive)")
	attendanceListCmd.Flags().Bool("json", false, "Output as JSON")
	attendanceListCmd.MarkFlagsMutuallyExclusive("class", "student", "from")
	attendanceListCmd.MarkFlagsOneRequired("class", "student", "from")

	attendanceRecordCmd.Flags().String("date", "", "Attendance day (YYYY-MM-DD, default today)")
	attendanceRecordCmd.Flags().String("status", "Present", "Present or Absent")
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var seq iter.Seq2[database.AttendanceEvent, error]
	switch {
	case mustGetString(cmd, "class") != "":
		class, err := resolveClass(ctx, a.store, mustGetString(cmd, "class"))
		if err != nil {
			return err
		}
		seq = a.store.QueryByClass(ctx, class.ID)
	case mustGetString(cmd, "student") != "":
		student, err := resolveStudent(ctx, a.store, mustGetString(cmd, "student"))
		if err != nil {
			return err
		}
		seq = a.store.QueryByStudent(ctx, student.ID)
	default:
		from, err := database.ParseDate(mustGetString(cmd, "from"))
		if err != nil {
			return err
		}
		to, err := parseDateFlag(mustGetString(cmd, "to"), from)
		if err != nil {
			return err
		}
		seq = a.store.QueryByDateRange(ctx, from, to)
	}

	if mustGetBool(cmd, "json") {
		events, err := database.Collect(seq)
		if err != nil {
			return err
		}
		return outputJSON(events)
	}

	names := make(map[int64]string)
	name := func(id int64) string {
		if n, ok := names[id]; ok {
			return n
		}
		n := strconv.FormatInt(id, 10)
		if s, err := a.store.GetStudent(ctx, id); err == nil {
			n = s.Name
		}
		names[id] = n
		return n
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tCLASS\tSTUDENT\tSTATUS")
	count := 0
	for ev, err := range seq {
		if err != nil {
			w.Flush()
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", ev.ID, ev.Date.Format(database.DateLayout), ev.ClassID, name(ev.StudentID), ev.Status)
		count++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d records\n", count)
	return nil
}

func runAttendanceRecord(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
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
	student, err := resolveStudent(ctx, a.store, args[1])
	if err != nil {
		return err
	}

	ev, err := a.store.RecordAttendance(ctx, class.ID, student.ID, date, status)
	if err != nil {
		return err
	}
	fmt.Printf("Recorded %d: %s %s in %s on %s\n", ev.ID, student.Name, ev.Status, class.Name, ev.Date.Format(database.DateLayout))
	return nil
}

func runAttendanceSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid attendance ID %q", args[0])
	}
	status, err := database.ParseStatus(args[1])
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.UpdateAttendance(ctx, id, status); err != nil {
		return err
	}
	fmt.Printf("Attendance %d set to %s\n", id, status)
	return nil
}

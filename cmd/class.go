package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/spf13/cobra"
)

var classCmd = &cobra.Command{
	Use:   "class",
	Short: "Manage classes",
}

var classCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a class",
	Long: `Create a class.

Example:
  attendance class create "Math 101" --room 101 --start 2022-01-01 --end 2022-05-01 --time 09:00`,
	Args: cobra.ExactArgs(1),
	RunE: runClassCreate,
}

var classListCmd = &cobra.Command{
	Use:   "list",
	Short: "List classes",
	Args:  cobra.NoArgs,
	RunE:  runClassList,
}

var classShowCmd = &cobra.Command{
	Use:   "show <class>",
	Short: "Show a class and its roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassShow,
}

var classDeleteCmd = &cobra.Command{
	Use:   "delete <class>",
	Short: "Delete a class without attendance history",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassDelete,
}

func init() {
	rootCmd.AddCommand(classCmd)
	classCmd.AddCommand(classCreateCmd, classListCmd, classShowCmd, classDeleteCmd)

	classCreateCmd.Flags().String("room", "", "Room number")
	classCreateCmd.Flags().String("description", "", "Description")
	classCreateCmd.Flags().String("start", "", "First day (YYYY-MM-DD)")
	classCreateCmd.Flags().String("end", "", "Last day (YYYY-MM-DD)")
	classCreateCmd.Flags().String("time", "", "Meeting time (HH:MM)")
	classCreateCmd.MarkFlagRequired("start")
	classCreateCmd.MarkFlagRequired("end")
	classCreateCmd.MarkFlagRequired("time")

	classListCmd.Flags().Bool("json", false, "Output as JSON")
	classShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func runClassCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start, err := database.ParseDate(mustGetString(cmd, "start"))
	if err != nil {
		return err
	}
	end, err := database.ParseDate(mustGetString(cmd, "end"))
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	class := &database.Class{
		Name:        args[0],
		RoomNumber:  mustGetString(cmd, "room"),
		Description: mustGetString(cmd, "description"),
		StartDate:   start,
		EndDate:     end,
		MeetingTime: mustGetString(cmd, "time"),
	}
	if err := a.store.CreateClass(ctx, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	fmt.Printf("Created class %d: %s\n", class.ID, class.Name)
	return nil
}

func runClassList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	classes, err := a.store.ListClasses(ctx)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(classes)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROOM\tTIME\tFROM\tTO")
	for _, c := range classes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.RoomNumber, c.MeetingTime,
			c.StartDate.Format(database.DateLayout), c.EndDate.Format(database.DateLayout))
	}
	return w.Flush()
}

// ClassDetail is the JSON output of class show.
type ClassDetail struct {
	database.Class
	Students []database.Student `json:"students"`
}

func runClassShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	class, err := resolveClass(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	roster, err := a.store.ListEnrolled(ctx, class.ID)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(ClassDetail{Class: *class, Students: roster})
	}

	fmt.Printf("Class %d: %s\n", class.ID, class.Name)
	fmt.Printf("  Room:  %s\n", class.RoomNumber)
	fmt.Printf("  Time:  %s\n", class.MeetingTime)
	fmt.Printf("  Dates: %s - %s\n", class.StartDate.Format(database.DateLayout), class.EndDate.Format(database.DateLayout))
	if class.Description != "" {
		fmt.Printf("  %s\n", class.Description)
	}
	fmt.Printf("\n%d students enrolled:\n", len(roster))
	for _, s := range roster {
		n, err := a.store.CountEmbeddings(ctx, s.ID)
		if err != nil {
			return err
		}
		warn := ""
		if n < a.cfg.Matcher.MinEmbeddingsPerStudent {
			warn = "  (not enough faces to be recognized)"
		}
		fmt.Printf("  %d\t%s\t%d faces%s\n", s.ID, s.Name, n, warn)
	}
	return nil
}

func runClassDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	class, err := resolveClass(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	if err := a.store.DeleteClass(ctx, class.ID); err != nil {
		return fmt.Errorf("delete class %d: %w", class.ID, err)
	}
	fmt.Printf("Deleted class %d: %s\n", class.ID, class.Name)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/spf13/cobra"
)

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Manage students and enrollments",
}

var studentCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a student",
	Long: `Create a student, optionally enrolled in classes.

Example:
  attendance student create "Alice Nováková" --class 1 --class 3`,
	Args: cobra.ExactArgs(1),
	RunE: runStudentCreate,
}

var studentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students",
	Args:  cobra.NoArgs,
	RunE:  runStudentList,
}

var studentRenameCmd = &cobra.Command{
	Use:   "rename <student> <new-name>",
	Short: "Rename a student",
	Args:  cobra.ExactArgs(2),
	RunE:  runStudentRename,
}

var studentDeleteCmd = &cobra.Command{
	Use:   "delete <student>",
	Short: "Delete a student without attendance history",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentDelete,
}

var studentEnrollCmd = &cobra.Command{
	Use:   "enroll <student> <class>",
	Short: "Enroll a student in a class",
	Args:  cobra.ExactArgs(2),
	RunE:  runStudentEnroll,
}

var studentUnenrollCmd = &cobra.Command{
	Use:   "unenroll <student> <class>",
	Short: "Remove a student from a class",
	Args:  cobra.ExactArgs(2),
	RunE:  runStudentEnroll,
}

func init() {
	rootCmd.AddCommand(studentCmd)
	studentCmd.AddCommand(studentCreateCmd, studentListCmd, studentRenameCmd, studentDeleteCmd,
		studentEnrollCmd, studentUnenrollCmd)

	studentCreateCmd.Flags().Int64Slice("class", nil, "Class ID to enroll in (repeatable)")
	studentListCmd.Flags().String("name", "", "Only students matching this name")
	studentListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStudentCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	student := &database.Student{Name: args[0], ClassIDs: mustGetInt64Slice(cmd, "class")}
	if err := a.store.CreateStudent(ctx, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	fmt.Printf("Created student %d: %s\n", student.ID, student.Name)
	return nil
}

func runStudentList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var students []database.Student
	if name := mustGetString(cmd, "name"); name != "" {
		students, err = a.store.FindStudentsByName(ctx, name)
	} else {
		students, err = a.store.ListStudents(ctx)
	}
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(students)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFACES")
	for _, s := range students {
		n, err := a.store.CountEmbeddings(ctx, s.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%d\n", s.ID, s.Name, n)
	}
	return w.Flush()
}

func runStudentRename(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	student, err := resolveStudent(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	old := student.Name
	student.Name = args[1]
	if err := a.store.UpdateStudent(ctx, student); err != nil {
		return fmt.Errorf("rename student %d: %w", student.ID, err)
	}
	fmt.Printf("Renamed student %d: %s -> %s\n", student.ID, old, student.Name)
	return nil
}

func runStudentDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	student, err := resolveStudent(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	if err := a.store.DeleteStudent(ctx, student.ID); err != nil {
		return fmt.Errorf("delete student %d: %w", student.ID, err)
	}
	fmt.Printf("Deleted student %d: %s\n", student.ID, student.Name)
	return nil
}

// runStudentEnroll serves both enroll and unenroll.
func runStudentEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	student, err := resolveStudent(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	class, err := resolveClass(ctx, a.store, args[1])
	if err != nil {
		return err
	}

	if cmd.Name() == "unenroll" {
		if err := a.store.Unenroll(ctx, student.ID, class.ID); err != nil {
			return err
		}
		fmt.Printf("Removed %s from %s\n", student.Name, class.Name)
		return nil
	}
	if err := a.store.Enroll(ctx, student.ID, class.ID); err != nil {
		return err
	}
	fmt.Printf("Enrolled %s in %s\n", student.Name, class.Name)
	return nil
}

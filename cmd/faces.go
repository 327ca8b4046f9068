package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Manage student face embeddings",
}

var facesAddCmd = &cobra.Command{
	Use:   "add <student> <image-or-folder> [image-or-folder...]",
	Short: "Enroll face images for a student",
	Long: `Compute face embeddings from images and store them for a student.

Folders are searched non-recursively for jpg, jpeg, png, gif, bmp and webp
files. Images without a detectable face are reported and skipped. With
--replace the student's existing embeddings are swapped for the new ones
in a single transaction.

Example:
  attendance faces add "Alice" ./photos/alice
  attendance faces add 12 front.jpg side.jpg --replace`,
	Args: cobra.MinimumNArgs(2),
	RunE: runFacesAdd,
}

var facesClearCmd = &cobra.Command{
	Use:   "clear <student>",
	Short: "Delete all face embeddings of a student",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacesClear,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesAddCmd, facesClearCmd)

	facesAddCmd.Flags().Bool("replace", false, "Replace existing embeddings instead of adding")
}

// isImageFile checks if a file has an extension the capture decoder supports
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

// collectImages expands folders into the image files they contain.
func collectImages(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read folder %s: %w", path, err)
		}
		for _, e := range entries {
			if !e.IsDir() && isImageFile(e.Name()) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}
	return files, nil
}

func runFacesAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	replace := mustGetBool(cmd, "replace")

	files, err := collectImages(args[1:])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", strings.Join(args[1:], ", "))
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	student, err := resolveStudent(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	enroller := a.enroller()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Embedding faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var vectors [][]float32
	var failed []string
	for _, file := range files {
		vec, err := enroller.Embed(ctx, capture.MethodFile+":"+file)
		bar.Add(1)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", file, err))
			continue
		}
		vectors = append(vectors, vec)
	}
	fmt.Println()

	for _, f := range failed {
		fmt.Printf("Skipped %s\n", f)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("no faces could be embedded for %s", student.Name)
	}

	if replace {
		if _, err := database.ReplaceEmbeddings(ctx, a.store, student.ID, vectors); err != nil {
			return err
		}
	} else {
		err := a.store.WithTransaction(ctx, func(ctx context.Context, tx database.Stores) error {
			for _, v := range vectors {
				if _, err := tx.AddEmbedding(ctx, student.ID, v); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("store embeddings for %s: %w", student.Name, err)
		}
	}

	total, err := a.store.CountEmbeddings(ctx, student.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Stored %d embeddings for %s (%d total)\n", len(vectors), student.Name, total)
	if total < a.cfg.Matcher.MinEmbeddingsPerStudent {
		fmt.Printf("Warning: %s needs at least %d embeddings to be recognized\n",
			student.Name, a.cfg.Matcher.MinEmbeddingsPerStudent)
	}
	return nil
}

func runFacesClear(cmd *cobra.Command, args []string) error {
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
	n, err := a.store.DeleteEmbeddings(ctx, student.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d embeddings of %s\n", n, student.Name)
	return nil
}

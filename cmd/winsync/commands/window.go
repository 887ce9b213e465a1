package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

var moveCmd = &cobra.Command{
	Use:   "move ID X Y",
	Short: "Move a window",
	Long: `Move a window to root coordinates X,Y and print the position the window
manager applied.`,
	Example: `  winsync move 0x3a00007 100 50`,
	Args:    cobra.ExactArgs(3),
	RunE:    runMove,
}

var resizeCmd = &cobra.Command{
	Use:     "resize ID WIDTH HEIGHT",
	Short:   "Resize a window",
	Example: `  winsync resize 0x3a00007 1280 720`,
	Args:    cobra.ExactArgs(3),
	RunE:    runResize,
}

var desktopCmd = &cobra.Command{
	Use:   "desktop ID N",
	Short: "Move a window to another desktop",
	Long:  `Move a window to desktop N (zero-based), or to every desktop with -1.`,
	Example: `  winsync desktop 0x3a00007 2

  # Show on all desktops
  winsync desktop 0x3a00007 -- -1`,
	Args: cobra.ExactArgs(2),
	RunE: runDesktop,
}

func init() {
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(resizeCmd)
	rootCmd.AddCommand(desktopCmd)
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", a)
		}
		out[i] = n
	}
	return out, nil
}

func runMove(cmd *cobra.Command, args []string) error {
	nums, err := parseInts(args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	s, err := startSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := s.lookupWindow(args[0])
	if err != nil {
		return err
	}
	actual, err := w.Position().Set(ctx, driver.Point{X: nums[0], Y: nums[1]})
	if err != nil {
		return fmt.Errorf("failed to move %s: %w", w.Handle(), err)
	}
	fmt.Printf("%s moved to %d,%d\n", w.Handle(), actual.X, actual.Y)
	return nil
}

func runResize(cmd *cobra.Command, args []string) error {
	nums, err := parseInts(args[1:])
	if err != nil {
		return err
	}
	if nums[0] <= 0 || nums[1] <= 0 {
		return fmt.Errorf("width and height must be positive")
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	s, err := startSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := s.lookupWindow(args[0])
	if err != nil {
		return err
	}
	actual, err := w.Size().Set(ctx, driver.Size{Width: nums[0], Height: nums[1]})
	if err != nil {
		return fmt.Errorf("failed to resize %s: %w", w.Handle(), err)
	}
	fmt.Printf("%s resized to %dx%d\n", w.Handle(), actual.Width, actual.Height)
	return nil
}

func runDesktop(cmd *cobra.Command, args []string) error {
	nums, err := parseInts(args[1:])
	if err != nil {
		return err
	}
	if nums[0] < driver.StickyDesktop {
		return fmt.Errorf("invalid desktop %d", nums[0])
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	s, err := startSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := s.lookupWindow(args[0])
	if err != nil {
		return err
	}
	actual, err := w.Desktop().Set(ctx, nums[0])
	if err != nil {
		return fmt.Errorf("failed to set desktop of %s: %w", w.Handle(), err)
	}
	fmt.Printf("%s is on desktop %d\n", w.Handle(), actual)
	return nil
}

package cmd

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Godsmith/hatch/pkg/builder"
	"github.com/Godsmith/hatch/pkg/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish [files...]",
	Short: "Upload build artifacts to the configured package index",
	RunE: func(cmd *cobra.Command, args []string) error {
		skipExisting, err := cmd.Flags().GetBool("skip-existing")
		if err != nil {
			return err
		}

		cfg, err := loadProject()
		if err != nil {
			return err
		}

		files := args
		if len(files) == 0 {
			buildCfg, err := builder.NewConfig(cfg.Root, builder.TargetSource, cfg.Build)
			if err != nil {
				return err
			}

			files, err = distFiles(buildCfg.Directory())
			if err != nil {
				return err
			}
		}

		return publish.Artifacts(newContext(), cfg, files, publish.SHA256, publish.Options{
			SkipExisting: skipExisting,
		})
	},
}

// distFiles lists the archives in the output directory.
func distFiles(dir string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "could not read %s, did you run hatch build?", dir)
	}

	files := []string{}
	for _, item := range items {
		if !item.IsDir() {
			files = append(files, filepath.Join(dir, item.Name()))
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, eris.Errorf("%s does not contain any artifacts", dir)
	}

	return files, nil
}

func init() {
	publishCmd.Flags().Bool("skip-existing", false, "ignore artifacts the index already has")
	rootCmd.AddCommand(publishCmd)
}

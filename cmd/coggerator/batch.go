package main

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/airbusgeo/coggerator/gcs"
	"github.com/alessio/shellescape"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tbonfort/gobs"
	"go.airbusds-geo.com/log"
	"go.uber.org/zap"
	k8sv1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	k8smeta "k8s.io/apimachinery/pkg/apis/meta/v1"

	wfv1 "github.com/argoproj/argo-workflows/v3/pkg/apis/workflow/v1alpha1"
	"sigs.k8s.io/yaml"
)

var defaultImage string = "build-error-this-variable-should-have-been-set-on-build"

func init() {
	batchCmd.Flags().String("outdir", "", "destination directory")
	batchCmd.MarkFlagRequired("outdir")
	batchCmd.Flags().Int("parallelism", 4, "number of concurrent conversions")
	addConversionFlags(batchCmd.Flags())

	workflowCmd.Flags().String("outdir", "", "destination directory, usually gs://bucket/prefix")
	workflowCmd.MarkFlagRequired("outdir")
	workflowCmd.Flags().String("dockerImage", defaultImage, "docker image for workers")
	workflowCmd.Flags().Bool("shell", false, "output shell script instead of argo workflow")
	addConversionFlags(workflowCmd.Flags())
}

// outputName returns the cog destination for src inside outdir: <basename>_cog.tif
func outputName(outdir, src string) string {
	base := path.Base(filepath.ToSlash(src))
	base = strings.TrimSuffix(base, path.Ext(base)) + "_cog.tif"
	if gcs.Handles(outdir) {
		return strings.TrimSuffix(outdir, "/") + "/" + base
	}
	return filepath.Join(outdir, base)
}

// checkOutputs makes sure no two sources are written to the same destination.
func checkOutputs(outdir string, srcs []string) (map[string]string, error) {
	dsts := make(map[string]string, len(srcs))
	seen := make(map[string]string, len(srcs))
	for _, src := range srcs {
		dst := outputName(outdir, src)
		if prev, ok := seen[dst]; ok {
			return nil, fmt.Errorf("%s and %s would both be written to %s", prev, src, dst)
		}
		seen[dst] = src
		dsts[src] = dst
	}
	return dsts, nil
}

var batchCmd = &cobra.Command{
	Use:   "batch --outdir dir srcfile...",
	Short: "convert multiple files concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		outdir := viper.GetString("outdir")
		dsts, err := checkOutputs(outdir, args)
		if err != nil {
			return err
		}
		pool := gobs.NewPool(viper.GetInt("parallelism"))
		batch := pool.Batch()
		mu := sync.Mutex{}
		failed := 0
		for _, src := range args {
			src := src
			batch.Submit(func() error {
				out, err := convert(ctx, src, dsts[src])
				if err != nil {
					log.Logger(ctx).Error("conversion failed", zap.String("input", src), zap.Error(err))
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}
				fmt.Println(out)
				return nil
			})
		}
		if err := batch.Wait(); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d conversions failed", failed, len(args))
		}
		return nil
	},
}

func int32Ptr(val int32) *int32 {
	a := val
	return &a
}

// convertCommand returns the command line converting src to dst with the options
// currently in effect.
func convertCommand(src, dst string) []string {
	command := []string{"coggerator", "convert", src, dst}
	for _, tk := range conversionTokens {
		if v := viper.GetString(tk); v != "" {
			command = append(command, "--"+tk, v)
		}
	}
	if viper.IsSet("nodata") {
		command = append(command, "--nodata", fmt.Sprintf("%g", viper.GetFloat64("nodata")))
	}
	if gc := viper.GetString("gdal-config"); gc != "" {
		command = append(command, "--gdal-config", gc)
	}
	return command
}

var workflowCmd = &cobra.Command{
	Use:   "workflow --outdir gs://bucket/prefix srcfile...",
	Short: "create an argo workflow converting each srcfile in its own pod",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outdir := viper.GetString("outdir")
		dsts, err := checkOutputs(outdir, args)
		if err != nil {
			return err
		}
		if viper.GetBool("shell") {
			for _, src := range args {
				fmt.Println(shellescape.QuoteCommand(convertCommand(src, dsts[src])))
			}
			return nil
		}
		wf := newWorkflow(viper.GetString("dockerImage"), args, dsts)
		yb, err := yaml.Marshal(wf)
		if err != nil {
			return fmt.Errorf("marshal workflow: %w", err)
		}
		fmt.Println(string(yb))
		return nil
	},
}

func newWorkflow(image string, srcs []string, dsts map[string]string) *wfv1.Workflow {
	wf := &wfv1.Workflow{
		ObjectMeta: k8smeta.ObjectMeta{
			GenerateName: "coggerator-",
			Labels: map[string]string{
				"coggerator/job": uuid.New().String(),
			},
		},
		TypeMeta: k8smeta.TypeMeta{
			APIVersion: "argoproj.io/v1alpha1",
			Kind:       "Workflow",
		},
		Spec: wfv1.WorkflowSpec{
			TTLStrategy: &wfv1.TTLStrategy{
				SecondsAfterSuccess: int32Ptr(3600),
			},
			Entrypoint: "coggerator",
			TemplateDefaults: &wfv1.Template{
				Container: &k8sv1.Container{
					ImagePullPolicy: k8sv1.PullAlways,
					Resources: k8sv1.ResourceRequirements{
						Requests: k8sv1.ResourceList{
							k8sv1.ResourceCPU:    resource.MustParse("2"),
							k8sv1.ResourceMemory: resource.MustParse("2G"),
						},
					},
					WorkingDir: "/tmp",
				},
			},
			Templates: []wfv1.Template{
				{Name: "coggerator"},
			},
		},
	}
	ps := wfv1.ParallelSteps{}
	for i, src := range srcs {
		ps.Steps = append(ps.Steps, wfv1.WorkflowStep{
			Name: fmt.Sprintf("convert-%d", i),
			Inline: &wfv1.Template{
				Container: &k8sv1.Container{
					Name:    "convert",
					Image:   image,
					Command: convertCommand(src, dsts[src]),
				},
			},
		})
	}
	wf.Spec.Templates[0].Steps = append(wf.Spec.Templates[0].Steps, ps)
	return wf
}

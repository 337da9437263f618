package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gemini-legion/legion/pkg/types"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage spawned agents",
	Long: `Manage spawned agents directly against Legion's Persona & Emotional
Engine, bypassing the HTTP API.`,
}

var agentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all spawned agents",
	RunE:    runAgentList,
}

var (
	agentSpawnName            string
	agentSpawnBasePersonality string
	agentSpawnModel           string
	agentSpawnTemperature     float64
)

var agentSpawnCmd = &cobra.Command{
	Use:   "spawn [agentID]",
	Short: "Spawn a new agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentSpawn,
}

var agentDespawnCmd = &cobra.Command{
	Use:   "despawn [agentID]",
	Short: "Despawn an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentDespawn,
}

func init() {
	agentSpawnCmd.Flags().StringVar(&agentSpawnName, "name", "", "Display name (required)")
	agentSpawnCmd.Flags().StringVar(&agentSpawnBasePersonality, "personality", "", "Base personality description (required)")
	agentSpawnCmd.Flags().StringVar(&agentSpawnModel, "model", "", "Model identifier, provider/model format (required)")
	agentSpawnCmd.Flags().Float64Var(&agentSpawnTemperature, "temperature", 0.7, "Sampling temperature")

	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentSpawnCmd)
	agentCmd.AddCommand(agentDespawnCmd)
}

func runAgentList(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir("")
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := buildApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	agents, err := a.personas.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT ID\tNAME\tMODEL\tSTATUS\tVALENCE")
	for _, ag := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\n",
			ag.AgentID, ag.Persona.Name, ag.Persona.ModelIdentifier, ag.Status, ag.EmotionalState.Mood.Valence)
	}
	return w.Flush()
}

func runAgentSpawn(cmd *cobra.Command, args []string) error {
	agentID := args[0]
	if agentSpawnName == "" || agentSpawnBasePersonality == "" || agentSpawnModel == "" {
		return fmt.Errorf("--name, --personality, and --model are required")
	}

	workDir, err := GetWorkDir("")
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := buildApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	agent, err := a.personas.Spawn(ctx, agentID, types.Persona{
		Name:            agentSpawnName,
		BasePersonality: agentSpawnBasePersonality,
		ModelIdentifier: agentSpawnModel,
		Temperature:     agentSpawnTemperature,
	})
	if err != nil {
		return err
	}

	fmt.Printf("spawned agent %s (%s)\n", agent.AgentID, agent.Persona.Name)
	return nil
}

func runAgentDespawn(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir("")
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := buildApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.personas.Despawn(ctx, args[0]); err != nil {
		return err
	}

	fmt.Printf("despawned agent %s\n", args[0])
	return nil
}

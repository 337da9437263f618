package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gemini-legion/legion/internal/channel"
	"github.com/gemini-legion/legion/pkg/types"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Manage channels",
	Long:  `Manage channels directly against Legion's Channel Service, bypassing the HTTP API.`,
}

var channelListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all channels",
	RunE:    runChannelList,
}

var (
	channelCreateType string
)

var channelCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runChannelCreate,
}

var channelPostCmd = &cobra.Command{
	Use:   "post [channelID] [content]",
	Short: "Post a message to a channel as the operator",
	Args:  cobra.ExactArgs(2),
	RunE:  runChannelPost,
}

func init() {
	channelCreateCmd.Flags().StringVar(&channelCreateType, "type", "public", "Channel type (public|private|dm)")

	channelCmd.AddCommand(channelListCmd)
	channelCmd.AddCommand(channelCreateCmd)
	channelCmd.AddCommand(channelPostCmd)
}

func runChannelList(cmd *cobra.Command, args []string) error {
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

	channels, err := a.channels.ListChannels(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL ID\tNAME\tTYPE\tMEMBERS")
	for _, ch := range channels {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", ch.ChannelID, ch.Name, ch.Type, len(ch.Members))
	}
	return w.Flush()
}

func runChannelCreate(cmd *cobra.Command, args []string) error {
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

	ch, err := a.channels.CreateChannel(ctx, channel.ChannelSpec{
		Type:      types.ChannelType(channelCreateType),
		Name:      args[0],
		CreatedBy: "operator",
	})
	if err != nil {
		return err
	}

	fmt.Printf("created channel %s (%s)\n", ch.ChannelID, ch.Name)
	return nil
}

func runChannelPost(cmd *cobra.Command, args []string) error {
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

	msg, err := a.channels.PostMessage(ctx, args[0], "operator", types.SenderUser, args[1], types.MessageChat, nil)
	if err != nil {
		return err
	}

	fmt.Printf("posted message %s\n", msg.MessageID)
	return nil
}

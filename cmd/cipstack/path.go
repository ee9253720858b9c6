package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/config"
	"github.com/tturner/cipstack/internal/errors"
)

func newPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Encode and decode EPATHs",
	}
	cmd.AddCommand(newPathEncodeCmd())
	cmd.AddCommand(newPathDecodeCmd())
	return cmd
}

type pathEncodeFlags struct {
	class     uint32
	instance  uint32
	attribute uint32
	member    uint32
	tag       string
	route     string
	packed    bool
}

func newPathEncodeCmd() *cobra.Command {
	flags := &pathEncodeFlags{}

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a logical or symbolic path",
		Long: `Encode an EPATH from a class/instance/attribute/member address or a tag
name. An optional route of port,link pairs is placed in front.

Logical values use the smallest format that holds them.`,
		Example: `  # Identity vendor id
  cipstack path encode --class 0x01 --instance 1 --attribute 1

  # Tag through the backplane, slot 0
  cipstack path encode --route 1,0 --tag Program:Main.Recipe[3]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			classSet := cmd.Flags().Changed("class")
			if !classSet && flags.tag == "" {
				return missingFlagError(cmd, "--class or --tag")
			}
			if classSet && flags.tag != "" {
				return fmt.Errorf("--class and --tag are exclusive")
			}
			return runPathEncode(cmd, flags)
		},
	}

	cmd.Flags().Uint32Var(&flags.class, "class", 0, "Class id (decimal or 0x hex)")
	cmd.Flags().Uint32Var(&flags.instance, "instance", 0, "Instance id")
	cmd.Flags().Uint32Var(&flags.attribute, "attribute", 0, "Attribute id")
	cmd.Flags().Uint32Var(&flags.member, "member", 0, "Member id")
	cmd.Flags().StringVar(&flags.tag, "tag", "", "Tag name, e.g. Program:Main.Counter[2]")
	cmd.Flags().StringVar(&flags.route, "route", "", "Route of port,link pairs, e.g. 1,0 or 2,10.0.0.5")
	cmd.Flags().BoolVar(&flags.packed, "packed", false, "Encode without pad bytes")

	return cmd
}

func runPathEncode(cmd *cobra.Command, flags *pathEncodeFlags) error {
	b := codec.NewPath()
	if flags.packed {
		b = codec.NewPackedPath()
	}

	route, err := config.ParseRoute(flags.route)
	if err != nil {
		return fmt.Errorf("--route: %w", err)
	}
	for _, seg := range route {
		b.Segment(seg)
	}

	if flags.tag != "" {
		b.Tag(flags.tag)
	} else {
		b.Class(flags.class)
		set := cmd.Flags().Changed
		if set("instance") {
			b.Instance(flags.instance)
		}
		if set("attribute") {
			b.Attribute(flags.attribute)
		}
		if set("member") {
			b.Member(flags.member)
		}
	}

	path, err := b.Build()
	if err != nil {
		return fmt.Errorf("build path: %w", err)
	}
	writePath(cmd, path)
	return nil
}

type pathDecodeFlags struct {
	packed bool
}

func newPathDecodeCmd() *cobra.Command {
	flags := &pathDecodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode an encoded EPATH",
		Long: `Decode the segments of an encoded EPATH. Use - to read the hex from
stdin.`,
		Example: `  cipstack path decode "20 01 24 01 30 01"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<hex>")
			}
			data, err := hexInput(cmd, args[0], "path")
			if err != nil {
				return err
			}
			path, _, err := codec.DecodePath(data, 0, codec.PathRest, !flags.packed)
			if err != nil {
				return errors.WrapDecodeError(err, "path")
			}
			writePath(cmd, path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.packed, "packed", false, "Decode as a packed path")

	return cmd
}

func writePath(cmd *cobra.Command, path codec.EPath) {
	out := cmd.OutOrStdout()
	encoded := path.Bytes()
	fmt.Fprintf(out, "Path: %s\n", path)
	fmt.Fprintf(out, "Bytes (%d): % X\n", len(encoded), encoded)
	if path.Padded {
		fmt.Fprintf(out, "Words: %d\n", len(encoded)/2)
	}
	fmt.Fprintf(out, "Segments:\n")
	for i, seg := range path.Segments {
		fmt.Fprintf(out, "  %d: %-28s % X\n", i, seg, codec.EncodePath(path.Padded, seg))
	}
}

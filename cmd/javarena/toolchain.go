package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var toolchainCmd = &cobra.Command{
	Use:   "toolchain",
	Short: "Show the Java compiler and runtime that will be used",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		info := a.toolchain.Info()
		w := cmd.OutOrStdout()

		fmt.Fprintf(w, "OS:      %s\n", info.OS)
		if !info.Available() {
			color.New(color.FgRed).Fprintln(w, "Java:    not found")
			fmt.Fprintln(w, "Install a JDK, or set JAVA_HOME or toolchain.java_home.")
			return exitError{code: 1}
		}
		fmt.Fprintf(w, "javac:   %s\n", info.Compiler)
		fmt.Fprintf(w, "java:    %s\n", info.Runtime)
		color.New(color.FgGreen).Fprintln(w, "Java:    available")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolchainCmd)
}

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/afroash/hydro-monitor/internal/classify"
	"github.com/afroash/hydro-monitor/internal/models"
)

var (
	sensorModel    string
	sensorLocation string
	commandType    string
	readingAt      string

	sensorsCmd = &cobra.Command{
		Use:   "sensors",
		Short: "List registered sensors",
		RunE:  withApp(listSensors),
	}
	sensorsAddCmd = &cobra.Command{
		Use:   "add <id> <tipo>",
		Short: "Register a sensor",
		Args:  cobra.ExactArgs(2),
		RunE:  withApp(addSensor),
	}
	sensorsClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every sensor",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return printMessage(cmd)(a.api.ClearSensors(cmd.Context()))
		}),
	}

	actuatorsCmd = &cobra.Command{
		Use:   "actuators",
		Short: "List registered actuators",
		RunE:  withApp(listActuators),
	}
	actuatorsAddCmd = &cobra.Command{
		Use:   "add <id> <tipo>",
		Short: "Register an actuator",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return printMessage(cmd)(a.api.RegisterActuator(cmd.Context(), models.Actuator{ID: args[0], Tipo: args[1]}))
		}),
	}
	actuatorsClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every actuator",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return printMessage(cmd)(a.api.ClearActuators(cmd.Context()))
		}),
	}
	commandCmd = &cobra.Command{
		Use:   "command <atuador-id> <acao>",
		Short: "Send a command to an actuator",
		Args:  cobra.ExactArgs(2),
		RunE:  withApp(sendCommand),
	}
	commandsCmd = &cobra.Command{
		Use:   "commands",
		Short: "List the command history, newest first",
		RunE:  withApp(listCommands),
	}
	commandsClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Clear the command history of every actuator",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return printMessage(cmd)(a.api.ClearCommands(cmd.Context()))
		}),
	}

	readingsCmd = &cobra.Command{
		Use:   "readings",
		Short: "List readings, newest first",
		RunE:  withApp(listReadings),
	}
	readingsPushCmd = &cobra.Command{
		Use:   "push <sensor-id> <valor>",
		Short: "Post a reading as a device",
		Args:  cobra.ExactArgs(2),
		RunE:  withApp(pushReading),
	}
	readingsClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every reading",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return printMessage(cmd)(a.api.ClearReadings(cmd.Context()))
		}),
	}

	alertsCmd = &cobra.Command{
		Use:   "alerts",
		Short: "List out-of-range readings, newest first",
		RunE:  withApp(listAlerts),
	}

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Flush readings the backend kept while its store was down",
		RunE:  withApp(syncPending),
	}
)

func init() {
	sensorsAddCmd.Flags().StringVar(&sensorModel, "modelo", "", "Sensor model")
	sensorsAddCmd.Flags().StringVar(&sensorLocation, "localizacao", "", "Sensor location")
	sensorsCmd.AddCommand(sensorsAddCmd, sensorsClearCmd)

	commandCmd.Flags().StringVar(&commandType, "tipo", "", "Actuator type recorded with the command")
	commandsCmd.AddCommand(commandsClearCmd)
	actuatorsCmd.AddCommand(actuatorsAddCmd, actuatorsClearCmd, commandCmd, commandsCmd)

	readingsPushCmd.Flags().StringVar(&readingAt, "data-hora", "", "Reading timestamp (now when empty)")
	readingsCmd.AddCommand(readingsPushCmd, readingsClearCmd)

	rootCmd.AddCommand(sensorsCmd, actuatorsCmd, readingsCmd, alertsCmd, syncCmd)
}

// printMessage prints the backend's confirmation message unless the call failed.
func printMessage(cmd *cobra.Command) func(msg string, err error) error {
	return func(msg string, err error) error {
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	}
}

func listSensors(cmd *cobra.Command, args []string, a *app) error {
	sensors, err := a.api.ListSensors(cmd.Context())
	if err != nil {
		return err
	}
	a.renderer.Sensors(a.orderer.Sensors(sensors))
	return nil
}

func addSensor(cmd *cobra.Command, args []string, a *app) error {
	return printMessage(cmd)(a.api.RegisterSensor(cmd.Context(), models.Sensor{
		ID:          args[0],
		Tipo:        args[1],
		Modelo:      sensorModel,
		Localizacao: sensorLocation,
	}))
}

func listActuators(cmd *cobra.Command, args []string, a *app) error {
	actuators, err := a.api.ListActuators(cmd.Context())
	if err != nil {
		return err
	}
	a.renderer.Actuators(a.orderer.Actuators(actuators))
	return nil
}

func sendCommand(cmd *cobra.Command, args []string, a *app) error {
	return printMessage(cmd)(a.api.SendCommand(cmd.Context(), models.Command{
		AtuadorID: args[0],
		Tipo:      commandType,
		Acao:      args[1],
		DataHora:  models.FormatTimestamp(time.Now()),
	}))
}

func listCommands(cmd *cobra.Command, args []string, a *app) error {
	commands, err := a.api.ListCommands(cmd.Context())
	if err != nil {
		return err
	}
	a.renderer.Commands(a.orderer.Commands(commands))
	return nil
}

func listReadings(cmd *cobra.Command, args []string, a *app) error {
	readings, err := a.api.ListReadings(cmd.Context())
	if err != nil {
		return err
	}
	a.renderer.Readings(classify.LabelReadings(a.orderer.Readings(readings)))
	return nil
}

func pushReading(cmd *cobra.Command, args []string, a *app) error {
	valor, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid valor %q: %w", args[1], err)
	}
	at := time.Now()
	if readingAt != "" {
		if at, err = models.ParseTimestamp(readingAt); err != nil {
			return err
		}
	}
	return printMessage(cmd)(a.api.PostReading(cmd.Context(), models.Reading{
		SensorID: args[0],
		Valor:    valor,
		DataHora: models.FormatTimestamp(at),
	}))
}

func listAlerts(cmd *cobra.Command, args []string, a *app) error {
	alerts, err := a.api.ListAlerts(cmd.Context())
	if err != nil {
		return err
	}
	a.renderer.Alerts(classify.LabelAlerts(a.orderer.Alerts(alerts)))
	return nil
}

func syncPending(cmd *cobra.Command, args []string, a *app) error {
	res, err := a.api.SyncPending(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (sincronizadas: %d, pendentes: %d)\n", res.Message, res.Sincronizadas, res.Pendentes)
	return nil
}

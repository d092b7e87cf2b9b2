// stepgen - extruder step generation inspection tool
//
// Samples pressure-advance smoothed stepper positions over a demo move
// sequence, or serves them over the motion report API.
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"klipper-stepgen/pkg/config"
	"klipper-stepgen/pkg/extruder"
	"klipper-stepgen/pkg/log"
	"klipper-stepgen/pkg/motion"
	"klipper-stepgen/pkg/motionreport"
)

var logger = log.New("stepgen")

func main() {
	cmd := &cli.Command{
		Name:  "stepgen",
		Usage: "Inspect pressure-advance smoothed extruder motion",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sample",
				Usage: "Print sampled positions for a demo move sequence as CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Printer config file with an [extruder] section",
					},
					&cli.FloatFlag{
						Name:  "pressure-advance",
						Usage: "Pressure advance (seconds), used without --config",
						Value: 0.05,
					},
					&cli.FloatFlag{
						Name:  "smooth-time",
						Usage: "Smoothing window (seconds), used without --config",
						Value: 0.040,
					},
					&cli.FloatFlag{
						Name:  "velocity",
						Usage: "Cruise velocity of the demo trapezoid (mm/s)",
						Value: 30.,
					},
					&cli.FloatFlag{
						Name:  "accel",
						Usage: "Acceleration of the demo trapezoid (mm/s^2)",
						Value: 1500.,
					},
					&cli.FloatFlag{
						Name:  "distance",
						Usage: "Distance of the demo trapezoid (mm)",
						Value: 50.,
					},
					&cli.FloatFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Usage:   "Sample interval (seconds)",
						Value:   0.001,
					},
				},
				Action: runSample,
			},
			{
				Name:  "serve",
				Usage: "Serve sampled motion over the motion report API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Printer config file with an [extruder] section",
					},
					&cli.StringFlag{
						Name:  "addr",
						Usage: "HTTP listen address",
						Value: ":7130",
					},
					&cli.FloatFlag{
						Name:  "velocity",
						Usage: "Cruise velocity of the demo trapezoid (mm/s)",
						Value: 30.,
					},
					&cli.FloatFlag{
						Name:  "accel",
						Usage: "Acceleration of the demo trapezoid (mm/s^2)",
						Value: 1500.,
					},
					&cli.FloatFlag{
						Name:  "distance",
						Usage: "Distance of the demo trapezoid (mm)",
						Value: 50.,
					},
				},
				Action: runServe,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

// buildStepper creates the extruder stepper, from a config file when
// given one and from command line flags otherwise.
func buildStepper(cmd *cli.Command, queue *motion.Queue) (*extruder.Stepper, error) {
	if path := cmd.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		sec, err := cfg.GetSection("extruder")
		if err != nil {
			return nil, err
		}
		s, err := extruder.NewFromConfig(sec, queue)
		if err != nil {
			return nil, err
		}
		if err := cfg.CheckUnusedOptions(); err != nil {
			logger.Warnf("%v", err)
		}
		return s, nil
	}

	s := extruder.New("extruder", queue)
	err := s.SetPressureAdvance(cmd.Float("pressure-advance"), cmd.Float("smooth-time"))
	return s, err
}

// queueDemoMotion queues a lead-in dwell, one full trapezoid and a
// lead-out dwell, the dwells sized to the stepper's scan windows so
// that every time within the trapezoid can be sampled with its
// smoothing window fully covered. It returns the trapezoid's time span.
func queueDemoMotion(queue *motion.Queue, stepper *extruder.Stepper,
	velocity, accel, distance float64) (start, end float64, err error) {
	axesR := motion.Coord{X: 1., Y: 1.}
	pre, post := stepper.Kinematics().ScanWindows()
	if pre > 0. {
		queue.Append(0., 0., pre, 0., queue.LastPosition(), axesR, 0., 0., 0., false)
	}
	end, err = queueTrapezoid(queue, pre, velocity, accel, distance)
	if err != nil {
		return 0, 0, err
	}
	if post > 0. {
		queue.Append(end, 0., post, 0., queue.LastPosition(), axesR, 0., 0., 0., false)
	}
	return pre, end, nil
}

// queueTrapezoid appends one full trapezoid (accelerate to cruise
// velocity, cruise, decelerate to rest) covering the given distance,
// and returns the time the motion ends.
func queueTrapezoid(queue *motion.Queue, startTime, velocity, accel, distance float64) (float64, error) {
	if velocity <= 0. || accel <= 0. || distance <= 0. {
		return 0, fmt.Errorf("velocity, accel and distance must be positive")
	}
	accelT := velocity / accel
	accelDist := .5 * velocity * accelT
	if 2.*accelDist > distance {
		return 0, fmt.Errorf("distance %g too short to reach %g mm/s at %g mm/s^2",
			distance, velocity, accel)
	}
	cruiseT := (distance - 2.*accelDist) / velocity

	axesR := motion.Coord{X: 1., Y: 1.}
	queue.Append(startTime, accelT, cruiseT, accelT,
		queue.LastPosition(), axesR, 0., velocity, accel, true)
	return startTime + 2.*accelT + cruiseT, nil
}

func runSample(ctx context.Context, cmd *cli.Command) error {
	logger.SetLevel(log.ParseLevel(cmd.String("log-level")))

	queue := motion.NewQueue()
	stepper, err := buildStepper(cmd, queue)
	if err != nil {
		return err
	}
	startTime, endTime, err := queueDemoMotion(queue, stepper,
		cmd.Float("velocity"), cmd.Float("accel"), cmd.Float("distance"))
	if err != nil {
		return err
	}

	sampler := motionreport.NewQueueSampler(stepper.GetName(), queue,
		stepper.Kinematics(), stepper.Status)
	samples, err := sampler.Sample(startTime, endTime, cmd.Float("interval"))
	if err != nil {
		return err
	}

	fmt.Println("time,nominal,position")
	for _, s := range samples {
		fmt.Printf("%.6f,%.9f,%.9f\n", s.Time, s.Nominal, s.Position)
	}
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	logger.SetLevel(log.ParseLevel(cmd.String("log-level")))

	queue := motion.NewQueue()
	stepper, err := buildStepper(cmd, queue)
	if err != nil {
		return err
	}
	if _, _, err := queueDemoMotion(queue, stepper,
		cmd.Float("velocity"), cmd.Float("accel"), cmd.Float("distance")); err != nil {
		return err
	}

	server := motionreport.NewServer(cmd.String("addr"))
	server.Register(stepper.GetName(), motionreport.NewQueueSampler(
		stepper.GetName(), queue, stepper.Kinematics(), stepper.Status))
	return server.Start()
}

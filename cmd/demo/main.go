// Command demo wires the scheduler, a queue, a mutex, a stream buffer and
// the software-timer service together over the hosted port, exercising a
// small producer/consumer pipeline end to end. It is not part of the
// public API; it exists to give the rest of this repository a runnable
// entry point, the way the teacher's cmd/ programs do for its own
// packages.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/gokernel/config"
	"github.com/joeycumines/gokernel/diag"
	"github.com/joeycumines/gokernel/hostport"
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
	"github.com/joeycumines/gokernel/list"
	"github.com/joeycumines/gokernel/queue"
	"github.com/joeycumines/gokernel/streambuf"
	"github.com/joeycumines/gokernel/timer"
	"github.com/joeycumines/logiface"
)

func main() {
	log := kernlog.New(os.Stderr, logiface.LevelInformational)
	cfg := config.New(
		config.WithMaxPriorities(4),
		config.WithTickRateHz(1000),
		config.WithTimerTask(2, 4, 256),
	)
	p := hostport.New()
	k := kernel.New(cfg, p, log)

	taskCount := k.TaskCount

	readings := queue.New[int](k, log, "readings", 4, taskCount)
	printMu := queue.NewMutex(k, log, "print-mutex")
	events := streambuf.NewMessage(k, log, "events", 256, cfg.MessageBufferLengthType, 0)

	timers := timer.New(k, log, cfg, taskCount)

	diagCollector := diag.New(k)
	diagCollector.RegisterQueue(readings)
	diagCollector.RegisterTimerService(timers)

	k.StartScheduler()
	if err := timers.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "timer service start:", err)
		os.Exit(1)
	}

	producer := func(any) {
		h := k.CurrentTaskHandle()
		for i := 0; ; i++ {
			if err := readings.Send(h, i, list.ValueMax, queue.Back); err != nil {
				return
			}
			if err := k.Delay(h, 50); err != nil {
				return
			}
		}
	}

	consumer := func(any) {
		h := k.CurrentTaskHandle()
		for {
			v, err := readings.Receive(h, list.ValueMax)
			if err != nil {
				return
			}
			if err := printMu.Take(h, list.ValueMax); err != nil {
				return
			}
			msg := fmt.Sprintf("reading=%d", v)
			_, _ = events.Send(h, []byte(msg), 0)
			_ = printMu.Give(h)
		}
	}

	if _, err := k.CreateTask("producer", 1, 512, producer, nil); err != nil {
		fmt.Fprintln(os.Stderr, "create producer:", err)
		os.Exit(1)
	}
	if _, err := k.CreateTask("consumer", 2, 512, consumer, nil); err != nil {
		fmt.Fprintln(os.Stderr, "create consumer:", err)
		os.Exit(1)
	}

	_, _ = timers.Create("heartbeat", 200, true, nil, func(t *timer.Timer) {
		fmt.Println("heartbeat:", t.Name())
	})

	time.Sleep(2 * time.Second)

	snap := diagCollector.Snapshot()
	fmt.Printf("tick=%d tasks=%d delayed=%d timers_active=%d backlog=%d\n",
		snap.TickCount, snap.TaskCount, snap.DelayedCount, snap.TimerActiveCount, snap.TimerBacklogEvents)

	k.StopScheduler()
}

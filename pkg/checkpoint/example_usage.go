package checkpoint

import (
	"fmt"
	"log"

	"github.com/spf13/afero"
)

func ExampleManager() {
	mgr, err := NewManagerWithFS(afero.NewMemMapFs(), "/downloads", "kemono.su:patreon:123456")
	if err != nil {
		log.Fatal(err)
	}

	cp, err := mgr.Create("kemono.su:patreon:123456", "run-1")
	if err != nil {
		log.Fatal(err)
	}

	// After each listing page, record where the next run would resume.
	if err := mgr.UpdatePage(cp, 50, 50); err != nil {
		log.Fatal(err)
	}
	if err := mgr.UpdatePage(cp, 100, 100); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("pages fetched: %d, next offset: %d\n", cp.PagesFetched, cp.NextOffset)

	// A run that finishes cleanly removes its checkpoint.
	if err := mgr.Delete(); err != nil {
		log.Printf("Failed to delete checkpoint: %v", err)
	}
	fmt.Printf("checkpoint still present: %v\n", mgr.Exists())

	// Output:
	// pages fetched: 2, next offset: 100
	// checkpoint still present: false
}

func ExampleManager_resume() {
	fs := afero.NewMemMapFs()
	target := "kemono.su:fanbox:9001"

	// A previous run got through two pages before being interrupted.
	earlier, _ := NewManagerWithFS(fs, "/downloads", target)
	cp, _ := earlier.Create(target, "run-1")
	cp.RecordOutcomes(80, 15, 5)
	_ = earlier.UpdatePage(cp, 100, 100)

	// The next run finds the checkpoint and picks up pagination there.
	mgr, _ := NewManagerWithFS(fs, "/downloads", target)
	resumed, err := mgr.Load()
	if err != nil {
		log.Fatal(err)
	}
	if resumed == nil {
		fmt.Println("nothing to resume")
		return
	}
	fmt.Printf("resuming %s at offset %d\n", resumed.Target, resumed.NextOffset)
	fmt.Printf("already completed: %d\n", resumed.Completed)

	// Output:
	// resuming kemono.su:fanbox:9001 at offset 100
	// already completed: 80
}

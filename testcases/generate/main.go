package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/knights-analytics/dualrun/testcases"
	"github.com/knights-analytics/dualrun/utils"
)

// generate the test models into ./models.

func main() {
	root := "./models"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	models := testcases.All()
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dir := utils.PathJoinSafe(root, name)
		ok, err := utils.FileExists(utils.PathJoinSafe(dir, "model.onnx"))
		if err != nil {
			panic(err)
		}
		if ok {
			continue
		}
		if _, err = models[name].WriteDir(dir, "model.onnx"); err != nil {
			panic(err)
		}
		fmt.Printf("Wrote %s to %s\n", name, dir)
	}
}

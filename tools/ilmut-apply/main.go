// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// ilmut-apply reads a serialized program and a YAML rule file, applies the
// first matching rewrite rule and prints the rewritten program.
//
//	ilmut-apply -rules rules.yaml -prog prog.il
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ilmut/ilmut/il"
	"github.com/ilmut/ilmut/pkg/log"
	"github.com/ilmut/ilmut/pkg/mutator"
	"github.com/ilmut/ilmut/pkg/rulefile"
	"github.com/ilmut/ilmut/pkg/stat"
)

var (
	flagProg  = flag.String("prog", "", "file with a serialized program")
	flagRules = flag.String("rules", "", "YAML file with rewrite rules")
	flagStats = flag.Bool("stats", false, "print rule statistics on exit")
)

func main() {
	flag.Parse()
	if *flagProg == "" || *flagRules == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}
	ops := il.DefaultOps()
	data, err := os.ReadFile(*flagProg)
	if err != nil {
		log.Fatal(err)
	}
	p, err := il.Deserialize(data, ops)
	if err != nil {
		log.Fatalf("failed to parse program: %v", err)
	}
	rules, err := rulefile.LoadFile(*flagRules, ops)
	if err != nil {
		log.Fatalf("failed to load rules: %v", err)
	}
	mut, err := mutator.New(ops, rules...)
	if err != nil {
		log.Fatal(err)
	}
	res, err := mut.Apply(p)
	if err != nil {
		log.Fatal(err)
	}
	if res == nil {
		log.Logf(0, "no rule matched")
		os.Exit(2)
	}
	log.Logf(1, "rule %v matched [%v,%v) id=%v", res.Rule, res.Start, res.End, res.ID)
	os.Stdout.Write(res.Program.Serialize())
	if *flagStats {
		for _, ui := range stat.Collect() {
			fmt.Fprintf(os.Stderr, "%v: %v\n", ui.Name, ui.Value)
		}
	}
}

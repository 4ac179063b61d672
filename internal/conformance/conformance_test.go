package conformance

import "testing"

func TestRunDefaultCasesPass(t *testing.T) {
	report, err := Run(DefaultCases(), 1, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Pass {
		for _, c := range report.Cases {
			if !c.Pass {
				t.Errorf("case %s: max_rel_err %g", c.Case, c.MaxRelErr)
			}
		}
		t.Fatal("default suite failed")
	}
	if report.Tolerance != DefaultTolerance {
		t.Fatalf("tolerance: got %g want %g", report.Tolerance, DefaultTolerance)
	}
}

func TestRunRejectsInvalidCase(t *testing.T) {
	cases := []Case{{M: 1, N: 1, K: 16, BlkLen: 12, Compute: ComputeFp32}}
	if _, err := Run(cases, 1, 0); err == nil {
		t.Fatal("expected error for bad block length")
	}

	cases = []Case{{M: 1, N: 1, K: 16, BlkLen: 16, Compute: "fp16"}}
	if _, err := Run(cases, 1, 0); err == nil {
		t.Fatal("expected error for unknown compute path")
	}
}

func TestRunDeterministic(t *testing.T) {
	cases := []Case{{M: 2, N: 5, K: 33, BlkLen: 16, Compute: ComputeInt8, ZeroPoints: true, Bias: true}}
	first, err := Run(cases, 9, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := Run(cases, 9, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Cases[0].MaxRelErr != second.Cases[0].MaxRelErr {
		t.Fatalf("same seed produced different errors: %g vs %g",
			first.Cases[0].MaxRelErr, second.Cases[0].MaxRelErr)
	}
}

func TestExecuteValidatesOperandLengths(t *testing.T) {
	c := Case{M: 1, N: 1, K: 16, BlkLen: 16, Compute: ComputeFp32}
	if _, err := Execute(c, make([]float32, 2), make([]float32, 16), nil); err == nil {
		t.Fatal("expected error for short a")
	}
	if _, err := Execute(c, make([]float32, 16), make([]float32, 2), nil); err == nil {
		t.Fatal("expected error for short b")
	}
	if _, err := Execute(c, make([]float32, 16), make([]float32, 16), make([]float32, 3)); err == nil {
		t.Fatal("expected error for short bias")
	}
	if _, err := Execute(c, make([]float32, 16), make([]float32, 16), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

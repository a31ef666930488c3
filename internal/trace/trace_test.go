package trace

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

func wrapMain(body string) string {
	return "public class Main {\n    public static void main(String[] args) {\n" + body + "\n    }\n}\n"
}

func mustVisualize(t *testing.T, src string) []Snapshot {
	t.Helper()
	steps, err := Visualize(src)
	if err != nil {
		t.Fatalf("Visualize: %v", err)
	}
	return steps
}

// local returns the value bound to name in the innermost frame of snap.
func local(snap Snapshot, name string) (Value, bool) {
	if len(snap.Stack) == 0 {
		return Value{}, false
	}
	return snap.Stack[0].Locals.Get(name)
}

func anyBinding(steps []Snapshot, name string, want Value) bool {
	for _, s := range steps {
		if v, ok := local(s, name); ok && v == want {
			return true
		}
	}
	return false
}

func descriptions(steps []Snapshot) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Description
	}
	return out
}

func TestPrintLiteral(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`        System.out.println("Hello, World!");`))
	last := steps[len(steps)-1]
	if last.Console != "Hello, World!" {
		t.Errorf("console = %q", last.Console)
	}
	want := []string{"Starting main", "Printed: Hello, World!", "Finished main"}
	if got := descriptions(steps); !reflect.DeepEqual(got, want) {
		t.Errorf("descriptions = %q, want %q", got, want)
	}
	if steps[1].Line == nil || *steps[1].Line != 3 {
		t.Errorf("print line = %v, want 3", steps[1].Line)
	}
	if steps[0].Line != nil {
		t.Error("starting snapshot should have no line")
	}
}

func TestArithmeticAndConcatenation(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`
        int x = 2 + 3;
        String s = "a" + 1;
        double d = 7 / 2.0;
        int q = 7 / 2;
        int r = -7 % 3;
        String mixed = 1 + 2 + "c" + 1 + 2;
        Object missing = y;
        int bad = 10 / missing;
        int zero = 1 / 0;`))

	tests := []struct {
		name string
		want Value
	}{
		{"x", Int(5)},
		{"s", Str("a1")},
		{"d", Float(3.5)},
		{"q", Int(3)},
		{"r", Int(-1)},
		{"mixed", Str("3c12")},
		{"missing", Null},
		{"bad", ErrorValue},
		{"zero", ErrorValue},
	}
	for _, tt := range tests {
		if !anyBinding(steps, tt.name, tt.want) {
			t.Errorf("no snapshot binds %s to %v", tt.name, tt.want)
		}
	}
}

func TestDescriptionsFormatValues(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`
        double d = 5;
        double e = 2.0 * 2.5;
        boolean b = 3 > 2;
        char c = 'x';
        String n = null;
        long big = 10_000_000_000L;`))
	want := []string{
		"Starting main",
		"Declared d = 5",
		"Declared e = 5.0",
		"Declared b = true",
		"Declared c = x",
		"Declared n = null",
		"Declared big = 10000000000",
		"Finished main",
	}
	if got := descriptions(steps); !reflect.DeepEqual(got, want) {
		t.Errorf("descriptions =\n%q\nwant\n%q", got, want)
	}
}

func TestAssignments(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`
        int x = 1;
        x = x + 10;
        x += 5;
        x++;
        --x;
        int h = 9;
        h /= 2.0;
        fresh = 3;`))
	want := []string{
		"Starting main",
		"Declared x = 1",
		"Assigned x = 11",
		"Assigned x = 16",
		"Assigned x = 17",
		"Assigned x = 16",
		"Declared h = 9",
		"Assigned h = 4",
		"Assigned fresh = 3",
		"Finished main",
	}
	if got := descriptions(steps); !reflect.DeepEqual(got, want) {
		t.Errorf("descriptions =\n%q\nwant\n%q", got, want)
	}
}

func TestHeapAllocation(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`
        Point p = new Point(1, 2);
        int[] a = new int[3];
        a[1] = 42;
        int n = a.length;
        int[] b = {4, 5};
        int[] none = new int[p];
        p.x = 7;`))

	last := steps[len(steps)-1]
	if len(last.Heap) != 4 {
		t.Fatalf("heap = %+v, want 4 objects", last.Heap)
	}
	obj := last.Heap[0]
	if obj.ID != "obj_0" || obj.Type != "Point" {
		t.Errorf("first object = %+v", obj)
	}
	if h, ok := obj.Fields.Get("hash"); !ok || h.Kind != KindString {
		t.Errorf("object has no hash field: %+v", obj.Fields)
	}
	if x, _ := obj.Fields.Get("x"); x != Int(7) {
		t.Errorf("p.x = %v, want 7", x)
	}

	arr := last.Heap[1]
	if arr.ID != "arr_1" || arr.Type != "int[]" {
		t.Errorf("array = %+v", arr)
	}
	wantSlots := Bindings{{"[0]", Int(0)}, {"[1]", Int(42)}, {"[2]", Int(0)}}
	if !reflect.DeepEqual(arr.Fields, wantSlots) {
		t.Errorf("array slots = %+v", arr.Fields)
	}
	if !anyBinding(steps, "n", Int(3)) {
		t.Error("a.length not evaluated")
	}

	init := last.Heap[2]
	if !reflect.DeepEqual(init.Fields, Bindings{{"[0]", Int(4)}, {"[1]", Int(5)}}) {
		t.Errorf("initializer slots = %+v", init.Fields)
	}
	if len(last.Heap[3].Fields) != 0 {
		t.Errorf("non-numeric size should give zero slots: %+v", last.Heap[3].Fields)
	}
}

func TestArrayAllocationBeforeSlotWrite(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`
        int[] a = new int[2];
        a[0] = 1;`))
	// Snapshots are full copies: the declaration step still shows the zero.
	decl := steps[1]
	if v, _ := decl.Heap[0].Fields.Get("[0]"); v != Int(0) {
		t.Errorf("earlier snapshot mutated: [0] = %v", v)
	}
	if steps[2].Description != "Assigned a[0] = 1" {
		t.Errorf("description = %q", steps[2].Description)
	}
}

func TestGraphLayout(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`
        Point p = new Point();
        Point q = p;
        int[] a = new int[1];`))
	g := steps[len(steps)-2].Graph // before the frame is popped

	if len(g.Nodes) != 3 {
		t.Fatalf("nodes = %+v", g.Nodes)
	}
	frame := g.Nodes[0]
	if frame.Type != "stackFrame" || frame.ID != "frame_0" || frame.Position != (Position{50, 0}) {
		t.Errorf("frame node = %+v", frame)
	}
	if frame.Data.Label != "main" {
		t.Errorf("frame label = %q", frame.Data.Label)
	}
	if g.Nodes[1].Position != (Position{400, 50}) || g.Nodes[2].Position != (Position{400, 200}) {
		t.Errorf("heap positions = %+v, %+v", g.Nodes[1].Position, g.Nodes[2].Position)
	}

	var labels []string
	for _, e := range g.Edges {
		if e.Source != "frame_0" {
			t.Errorf("unexpected edge source %+v", e)
		}
		labels = append(labels, e.Label+"->"+e.Target)
	}
	want := []string{"p->obj_0", "q->obj_0", "a->arr_1"}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("edges = %v, want %v", labels, want)
	}

	final := steps[len(steps)-1]
	if final.Description != "Finished main" || len(final.Stack) != 0 {
		t.Errorf("final snapshot = %+v", final)
	}
	if len(final.Heap) != 2 || len(final.Graph.Edges) != 0 {
		t.Errorf("heap survives the frame, edges do not: %+v", final.Graph)
	}
}

func TestControlFlowIsNotSimulated(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`
        int total = 0;
        for (int i = 0; i < 3; i++) {
            total += i;
            System.out.println(i);
        }
        while (total < 10) total++;
        if (total > 0) { total = -1; }
        helper();
        System.out.println("total " + total);`))
	want := []string{"Starting main", "Declared total = 0", "Printed: total 0", "Finished main"}
	if got := descriptions(steps); !reflect.DeepEqual(got, want) {
		t.Errorf("descriptions = %q, want %q", got, want)
	}
}

func TestUnsupportedExpressionsAreOpaque(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`
        java.util.Scanner sc = new java.util.Scanner(System.in);
        int n = sc.nextInt();
        Runnable r = () -> System.out.println("hi");
        String joined = "n=" + n;
        int broken = n - 1;`))
	for name, want := range map[string]Value{
		"n":      Opaque,
		"r":      Opaque,
		"joined": Str("n=..."),
		"broken": ErrorValue,
	} {
		if !anyBinding(steps, name, want) {
			t.Errorf("no snapshot binds %s to %v", name, want)
		}
	}
	if steps[1].Heap[0].Type != "java.util.Scanner" {
		t.Errorf("type = %q", steps[1].Heap[0].Type)
	}
}

func TestConsoleAccumulates(t *testing.T) {
	steps := mustVisualize(t, wrapMain(`
        System.out.println("one", 2);
        System.out.print("two");
        System.out.println(" more");
        System.out.println();`))
	if got := steps[1].Console; got != "one 2" {
		t.Errorf("after first print = %q", got)
	}
	if got := steps[len(steps)-1].Console; got != "one 2\ntwo more\n" {
		t.Errorf("final console = %q", got)
	}
}

func TestDeterministic(t *testing.T) {
	src := wrapMain(`
        Point p = new Point();
        int[] a = {1, 2, 3};
        String s = "x" + a.length;
        System.out.println(s);`)
	first := mustVisualize(t, src)
	second := mustVisualize(t, src)
	if !reflect.DeepEqual(first, second) {
		t.Error("two runs over the same source differ")
	}
}

func TestEntryPoint(t *testing.T) {
	src := `
class Helper {
    void main() { }
    static class Inner {
        public static void main(String[] args) {
            int inner = 1;
        }
    }
}
public class Main {
    public static void main(String[] args) {
        int outer = 2;
    }
}`
	steps := mustVisualize(t, src)
	if !anyBinding(steps, "inner", Int(1)) {
		t.Errorf("expected the first static main in document order: %q", descriptions(steps))
	}
}

func TestNoEntryPoint(t *testing.T) {
	for _, src := range []string{
		"",
		"public class Main { void main() {} }",
		"interface Shape { double area(); }",
	} {
		if _, err := Visualize(src); !errors.Is(err, ErrNoEntryPoint) {
			t.Errorf("Visualize(%q) err = %v, want ErrNoEntryPoint", src, err)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"missing expression", wrapMain("        int x = ;"), 3},
		{"missing semicolon", wrapMain("        int x = 1\n        int y = 2;"), 4},
		{"unbalanced", "public class Main { public static void main(String[] a) {", 1},
		{"unterminated string", wrapMain(`        String s = "oops;`), 3},
		{"bad assignment target", wrapMain("        1 = 2;"), 3},
		{"stray token", "public class Main { # }", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Visualize(tt.src)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.Line != tt.line {
				t.Errorf("line = %d, want %d (%v)", pe.Line, tt.line, pe)
			}
		})
	}
}

func TestMatchParens(t *testing.T) {
	toks, err := lex("f((a), (b) -> c)")
	if err != nil {
		t.Fatal(err)
	}
	closer := matchParens(toks)
	want := map[int]int{1: 11, 2: 4, 6: 8}
	for i, tk := range toks {
		if j, ok := want[i]; ok {
			if closer[i] != j {
				t.Errorf("closer[%d] (%s) = %d, want %d", i, tk, closer[i], j)
			}
		} else if closer[i] != -1 {
			t.Errorf("closer[%d] (%s) = %d, want -1", i, tk, closer[i])
		}
	}
}

func TestUnmatchedParenIsNotLambda(t *testing.T) {
	_, err := Visualize(wrapMain("        int x = ((1 + 2);"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
}

func TestNestingLimit(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"parentheses", "        int x = " + strings.Repeat("(", 5000) + "1" + strings.Repeat(")", 5000) + ";"},
		{"unary", "        int x = " + strings.Repeat("- ", 5000) + "1;"},
		{"blocks", "        " + strings.Repeat("{", 5000) + strings.Repeat("}", 5000)},
		{"array initializers", "        int[] a = " + strings.Repeat("{", 5000) + strings.Repeat("}", 5000) + ";"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Visualize(wrapMain(tt.body))
			var pe *ParseError
			if !errors.As(err, &pe) || !strings.Contains(pe.Msg, "nested too deeply") {
				t.Fatalf("err = %v, want a nesting error", err)
			}
		})
	}
}

func TestDeepParenthesesParseInLinearTime(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	const depth = 450
	var body strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&body, "        int x%d = %s%d%s;\n", i, strings.Repeat("(", depth), i, strings.Repeat(")", depth))
	}
	src := wrapMain(body.String())

	start := time.Now()
	steps := mustVisualize(t, src)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("parsing %d bytes took %s", len(src), elapsed)
	}
	if !anyBinding(steps, "x199", Int(199)) {
		t.Error("x199 never bound to 199")
	}
}

func TestParsesModernJava(t *testing.T) {
	src := `package demo;

import java.util.*;
import java.util.function.Function;
import static java.lang.Math.max;

@SuppressWarnings("unchecked")
public class Main {
    private static final int LIMIT = 10;
    private final Map<String, List<Integer>> index = new HashMap<>();
    int[] grid[] = new int[3][];

    enum Color { RED("r"), GREEN("g") { @Override public String toString() { return "G"; } };
        private final String code;
        Color(String code) { this.code = code; }
    }

    record Pair<A, B>(A first, B second) {
        Pair {
            Objects.requireNonNull(first);
        }
    }

    sealed interface Shape permits Circle {}
    static final class Circle implements Shape {}

    static <T extends Comparable<? super T>> T largest(List<? extends T> xs) {
        T best = null;
        for (T x : xs) {
            if (best == null || x.compareTo(best) > 0) best = x;
        }
        return best;
    }

    public static void main(String[] args) throws Exception {
        int a = 5, b[] = {1, 2};
        long mask = 0xFFL;
        mask >>>= 2;
        mask <<= 1;
        int shifted = a >> 1 >>> 2;
        boolean ok = a >= 3 && !(b.length < 1) || a != 4;
        String kind = switch (a) {
            case 1, 2 -> "small";
            case 5 -> {
                yield "five";
            }
            default -> "other";
        };
        Object o = kind;
        if (o instanceof String s && !s.isEmpty()) {
            System.out.println(s.length());
        }
        Function<Integer, Integer> twice = x -> x * 2;
        Comparator<String> cmp = (String l, String r) -> l.compareTo(r);
        Runnable task = new Runnable() {
            @Override
            public void run() { System.out.println("ran"); }
        };
        List<String> names = new ArrayList<>(List.of("b", "a"));
        names.sort(String::compareTo);
        names.forEach(System.out::println);
        int[][] matrix = new int[2][3];
        double avg = (double) a / 2;
        char c = (char) (a + 'a');
        String text = """
            Hello,
              block
            """;
        outer:
        for (int i = 0, j = 10; i < j; i++, j--) {
            for (;;) { break outer; }
        }
        do { a--; } while (a > 0);
        switch (a) {
            case 0:
                System.out.println("zero");
                break;
            default:
        }
        try (var in = new java.io.StringReader("x"); var in2 = new java.io.StringReader("y")) {
            in.read();
        } catch (java.io.IOException | RuntimeException e) {
            throw new IllegalStateException(e);
        } finally {
            assert a == 0 : "a must be zero";
        }
        synchronized (Main.class) { a = max(a, 1); }
        Class<?> type = int[].class;
        Function<Integer, int[]> alloc = int[]::new;
        var it = names.iterator();
        label2: while (it.hasNext()) { it.next(); continue label2; }
        int ternary = a > 0 ? a : b.length > 0 ? b[0] : -1;
        Main.<String>largest(names);
        System.out.println("done " + ternary);
    }
}
`
	steps := mustVisualize(t, src)
	last := steps[len(steps)-1]
	if !strings.HasSuffix(last.Console, "done 5") {
		t.Errorf("console = %q", last.Console)
	}
	if !anyBinding(steps, "kind", Opaque) {
		t.Error("switch expression should bind an opaque value")
	}
	if !anyBinding(steps, "mask", Int(0xFF>>2)) {
		t.Error(">>>= not applied")
	}
	if !anyBinding(steps, "shifted", Int(0)) {
		t.Error("shift chain not evaluated")
	}
	if !anyBinding(steps, "ok", Bool(true)) {
		t.Error("boolean expression not evaluated")
	}
	if !anyBinding(steps, "avg", Float(2.5)) {
		t.Error("cast not applied before division")
	}
	if !anyBinding(steps, "c", Char('f')) {
		t.Error("char arithmetic not evaluated")
	}
	if !anyBinding(steps, "text", Str("Hello,\n  block\n")) {
		t.Error("text block not decoded")
	}
}

func TestLexerLiterals(t *testing.T) {
	toks, err := lex(`x >>= 'a' "tab\there" 1_000L 2.5f .5 0x1F a->b ... 'A' "\0"`)
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	var got []string
	for _, tk := range toks {
		if tk.kind != tokEOF {
			got = append(got, tk.text)
		}
	}
	want := []string{"x", ">", ">=", "a", "tab\there", "1_000L", "2.5f", ".5", "0x1F", "a", "->", "b", "...", "A", "\x00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokens = %q\nwant     %q", got, want)
	}
}

func TestNumberClassification(t *testing.T) {
	tests := []struct {
		raw  string
		want Value
	}{
		{"42", Int(42)},
		{"0x1F", Int(31)},
		{"0b101", Int(5)},
		{"017", Int(15)},
		{"1_000", Int(1000)},
		{"10L", Int(10)},
		{"3.0", Float(3)},
		{"2f", Float(2)},
		{"1e3", Float(1000)},
		{"99999999999999999999", Str("99999999999999999999")},
	}
	for _, tt := range tests {
		if got := number(tt.raw); got != tt.want {
			t.Errorf("number(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestFormatFloat(t *testing.T) {
	tests := map[float64]string{
		5:        "5.0",
		3.5:      "3.5",
		-0.25:    "-0.25",
		1e7:      "1.0E7",
		1.5e-5:   "1.5E-5",
		123456.0: "123456.0",
	}
	for f, want := range tests {
		if got := formatFloat(f); got != want {
			t.Errorf("formatFloat(%v) = %q, want %q", f, got, want)
		}
	}
}

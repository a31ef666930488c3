package explain

import "regexp"

type rule struct {
	pattern     *regexp.Regexp
	title       string
	explanation string
}

func r(pattern, title, explanation string) rule {
	return rule{regexp.MustCompile("(?i)" + pattern), title, explanation}
}

// compileRules are matched against javac output in order; the first hit wins.
var compileRules = []rule{
	r(`cannot find symbol`, "Cannot Find Symbol",
		"The compiler cannot find a variable, method, or class that you referenced. This usually means:\n"+
			"  • You misspelled a variable or method name.\n"+
			"  • You forgot to declare a variable before using it.\n"+
			"  • You forgot to import a class (e.g. `import java.util.Scanner;`).\n"+
			"  • The variable is out of scope (declared inside a different block)."),
	r(`';' expected`, "Missing Semicolon",
		"Java requires a semicolon (;) at the end of every statement. Check the indicated line and the line "+
			"above it; the missing semicolon is often on the previous line."),
	r(`unclosed string literal`, "Unclosed String Literal",
		"You opened a string with a double-quote (\") but never closed it. Make sure every string has a "+
			"matching closing quote on the same line. For multi-line text use concatenation or a text block."),
	r(`illegal start of expression`, "Illegal Start of Expression",
		"The compiler found something unexpected where an expression should begin. Common causes:\n"+
			"  • A misplaced or extra brace { } or parenthesis ( ).\n"+
			"  • An access modifier (public/private) inside a method.\n"+
			"  • A missing operator between two values."),
	r(`class .+ is public, should be declared in a file named`, "Class Name / File Name Mismatch",
		"In this playground the file is always named Main.java, so your public class must be named `Main`. "+
			"Rename your class to `public class Main` to fix this."),
	r(`reached end of file while parsing`, "Reached End of File While Parsing",
		"The compiler hit the end of the file but was still expecting more code. You are most likely missing "+
			"one or more closing braces `}`. Count your opening and closing braces; they must match."),
	r(`incompatible types`, "Incompatible Types",
		"You tried to assign or return a value of one type where a different type is expected, for example "+
			"assigning a String to an int variable. Use a cast or a conversion method such as Integer.parseInt()."),
	r(`method .+ in class .+ cannot be applied to given types`, "Wrong Method Arguments",
		"You called a method with the wrong number or types of arguments. Check the method signature and "+
			"pass the parameters in the right order."),
	r(`non-static method .+ cannot be referenced from a static context`, "Non-static Method from Static Context",
		"You are calling an instance method from a static method (like `main`). Either:\n"+
			"  • Make the method `static`.\n"+
			"  • Create an instance of the class and call the method on that object."),
	r(`non-static variable .+ cannot be referenced from a static context`, "Non-static Variable from Static Context",
		"You are accessing an instance variable from a static method (like `main`). Either:\n"+
			"  • Make the variable `static`.\n"+
			"  • Create an instance of the class and access the variable through it."),
	r(`variable .+ might not have been initialized`, "Variable Not Initialized",
		"You declared a local variable but used it before assigning a value. Local variables must be "+
			"initialized before use; assign a value when you declare it (e.g. `int x = 0;`)."),
	r(`missing return statement`, "Missing Return Statement",
		"A method that declares a return type must return a value on every code path. Make sure every "+
			"branch ends with a `return`, or add one at the end of the method."),
	r(`unreachable statement`, "Unreachable Statement",
		"There is code after a `return`, `break`, `continue`, or `throw` that can never run. Remove it or "+
			"restructure the logic."),
	r(`array required but .+ found`, "Not an Array",
		"You used array indexing (e.g. `x[0]`) on something that is not an array. Check that the variable "+
			"is declared with an array type."),
	r(`bad operand type`, "Bad Operand Type",
		"You used an operator with a type it does not support, for example `<` on Strings instead of "+
			"`.compareTo()`, or `==` to compare String contents instead of `.equals()`."),
	r(`possible loss of precision|lossy conversion`, "Possible Loss of Precision",
		"You are storing a larger numeric type in a smaller one (e.g. double to int). Use an explicit cast "+
			"like `(int) myDouble` if losing the fractional part is fine."),
	r(`exception .+ must be caught or declared to be thrown`, "Unhandled Exception",
		"Checked exceptions must be handled. Either:\n"+
			"  • Wrap the code in a try-catch block.\n"+
			"  • Add `throws ExceptionType` to your method signature."),
	r(`illegal start of type`, "Illegal Start of Type",
		"The compiler expected a declaration but found something else. There is probably a statement "+
			"outside of a method, or a closing brace that ended a class or method too early."),
}

// runtimeRules are matched against the stderr of a failed run.
var runtimeRules = []rule{
	r(`java\.lang\.NullPointerException`, "NullPointerException",
		"You used an object reference that is `null`. Common causes:\n"+
			"  • Calling a method on a variable that was never assigned.\n"+
			"  • Accessing an array element that has not been initialized.\n"+
			"  • Using a method's null result without checking it."),
	r(`java\.lang\.ArrayIndexOutOfBoundsException`, "ArrayIndexOutOfBoundsException",
		"You accessed an array index that does not exist. An array of size N has valid indices 0 to N-1; "+
			"check your loop bounds against `array.length - 1`."),
	r(`java\.lang\.StringIndexOutOfBoundsException`, "StringIndexOutOfBoundsException",
		"You accessed a character position that does not exist in a String. Check `.length()` before "+
			"calling `.charAt()` or `.substring()`."),
	r(`java\.lang\.ArithmeticException.*/ by zero`, "ArithmeticException: Division by Zero",
		"You divided an integer by zero. Check the divisor first: `if (divisor != 0) { result = x / divisor; }`"),
	r(`java\.lang\.NumberFormatException`, "NumberFormatException",
		"You converted a String that does not contain a valid number, e.g. `Integer.parseInt(\"abc\")`. "+
			"Validate the input or wrap the conversion in a try-catch."),
	r(`java\.lang\.ClassCastException`, "ClassCastException",
		"You cast an object to a type it does not belong to. Use `instanceof` to check before casting."),
	r(`java\.lang\.StackOverflowError`, "StackOverflowError",
		"The program ran out of stack space, usually through infinite recursion. Your recursive method "+
			"probably has a missing or unreachable base case."),
	r(`java\.lang\.OutOfMemoryError`, "OutOfMemoryError",
		"The program ran out of memory, for example by creating a huge array or allocating in an endless loop."),
	r(`java\.util\.InputMismatchException`, "InputMismatchException",
		"The Scanner received input of the wrong type, e.g. letters for `nextInt()`. Make sure the input "+
			"matches what your Scanner calls expect."),
	r(`java\.util\.NoSuchElementException`, "NoSuchElementException",
		"The program tried to read more input than was provided. Supply enough input lines, or check "+
			"`scanner.hasNext()` before reading."),
	r(`java\.lang\.UnsupportedOperationException`, "UnsupportedOperationException",
		"You called a method this object does not support, commonly modifying a list from `Arrays.asList()` "+
			"or `List.of()`. Copy it into `new ArrayList<>(...)` first."),
	r(`java\.util\.ConcurrentModificationException`, "ConcurrentModificationException",
		"You modified a collection while iterating over it with a for-each loop. Use an `Iterator` and "+
			"`iterator.remove()`, or collect the changes and apply them after the loop."),
	r(`java\.lang\.IllegalArgumentException`, "IllegalArgumentException",
		"A method rejected one of its arguments. The message says which one; check the valid range in the "+
			"method's documentation."),
	r(`java\.io\.FileNotFoundException`, "FileNotFoundException",
		"The program tried to open a file that does not exist. File I/O is not available in the playground; "+
			"read from System.in and provide the data as input instead."),
}

const (
	genericCompile = "The Java compiler reported an error in your code. Read the error message carefully; " +
		"it usually names the exact line and what went wrong."
	genericRuntime = "Your program threw an exception while running. Read the stack trace from the bottom up " +
		"to find the line in your code that caused it."
)

// importHints pairs a class name with the import that provides it.
var importHints = []struct{ class, pkg string }{
	{"Scanner", "java.util"},
	{"ArrayList", "java.util"},
	{"Arrays", "java.util"},
	{"HashMap", "java.util"},
	{"List", "java.util"},
	{"Map", "java.util"},
}

var (
	lineRef     = regexp.MustCompile(`Main\.java:(\d+)`)
	importDecl  = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+(?:\.\*)?)\s*;`)
	frameOrigin = regexp.MustCompile(`at Main\.\w+\(Main\.java:(\d+)\)`)
	cannotFind  = regexp.MustCompile(`(?i)cannot find symbol`)
	semicolon   = regexp.MustCompile(`(?i)';' expected`)
	wrongFile   = regexp.MustCompile(`class .+ is public, should be declared in a file named`)
	unbalanced  = regexp.MustCompile(`reached end of file while parsing`)
)

// runtimeHints are suggestions keyed by what appears in the stack trace.
var runtimeHints = []struct {
	marker *regexp.Regexp
	hint   string
}{
	{regexp.MustCompile(`NullPointerException`), "Check which variable is null and make sure it's initialized before use."},
	{regexp.MustCompile(`ArrayIndexOutOfBoundsException`), "Print `array.length` to verify the array size and check your loop conditions."},
	{regexp.MustCompile(`InputMismatchException|NoSuchElementException`), "Make sure the input matches what your Scanner calls expect (type and count)."},
	{regexp.MustCompile(`StackOverflowError`), "Check your recursive function's base case; it may never be reached."},
	{regexp.MustCompile(`NumberFormatException`), "Verify the string you're parsing actually contains a valid number."},
}

package errors

// Error codes for the peephole front end
// These codes are used in error messages and editor diagnostics
// to provide consistent error identification across the toolchain.
//
// Error code ranges:
// E0100-E0199: Parser errors
// E0200-E0299: Lowering errors
// W0001-W0099: Warnings
// N0001-N0099: Notes from the rewrite engine

const (
	// Parser errors (E0100-E0199)

	// E0100: Source does not match the textual IR grammar
	ErrorSyntax = "E0100"

	// E0101: Source could not be read
	ErrorRead = "E0101"

	// Lowering errors (E0200-E0299)

	// E0200: Operand names a value that is never defined
	ErrorUndefinedValue = "E0200"

	// E0201: Value name defined twice in one function
	ErrorDuplicateValue = "E0201"

	// E0202: Branch to a label that does not exist
	ErrorUndefinedBlock = "E0202"

	// E0203: Label defined twice in one function
	ErrorDuplicateBlock = "E0203"

	// E0204: Unknown opcode
	ErrorUnknownOpcode = "E0204"

	// E0205: Unknown comparison predicate
	ErrorUnknownPredicate = "E0205"

	// E0206: Unknown or malformed type
	ErrorUnknownType = "E0206"

	// E0207: Wrong number of operands for an opcode
	ErrorOperandCount = "E0207"

	// E0208: Integer constant whose type cannot be inferred
	ErrorUntypedConstant = "E0208"

	// E0209: Integer constant that does not fit its type
	ErrorConstantRange = "E0209"

	// E0210: Result name on an instruction that produces no value
	ErrorVoidResult = "E0210"

	// E0211: Function defined twice in one module
	ErrorDuplicateFunction = "E0211"

	// E0212: Function is structurally invalid SSA
	ErrorInvalidFunction = "E0212"

	// Warning codes

	// W0001: Block that no branch reaches
	WarningUnreachableBlock = "W0001"

	// Note codes

	// N0001: Rewrite applied to an instruction
	NoteRewrite = "N0001"

	// N0002: Rewrite candidate refused by the verifier
	NoteRejected = "N0002"
)

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorSyntax:
		return "Source does not match the textual IR grammar"
	case ErrorRead:
		return "Source file could not be read"
	case ErrorUndefinedValue:
		return "Operand refers to a value that is never defined"
	case ErrorDuplicateValue:
		return "Value name is defined more than once in the function"
	case ErrorUndefinedBlock:
		return "Branch target label does not exist"
	case ErrorDuplicateBlock:
		return "Label is defined more than once in the function"
	case ErrorUnknownOpcode:
		return "Instruction opcode is not recognized"
	case ErrorUnknownPredicate:
		return "Comparison predicate is not recognized"
	case ErrorUnknownType:
		return "Type is not recognized"
	case ErrorOperandCount:
		return "Instruction has the wrong number of operands"
	case ErrorUntypedConstant:
		return "Integer constant needs an explicit type in this position"
	case ErrorConstantRange:
		return "Integer constant does not fit its type"
	case ErrorVoidResult:
		return "Instruction produces no value but names a result"
	case ErrorDuplicateFunction:
		return "Function is defined more than once"
	case ErrorInvalidFunction:
		return "Function violates SSA well-formedness"
	case WarningUnreachableBlock:
		return "Block is not reachable from the entry block"
	case NoteRewrite:
		return "Instruction was replaced by a cheaper equivalent"
	case NoteRejected:
		return "Candidate replacement failed verification"
	default:
		return "Unknown error code"
	}
}

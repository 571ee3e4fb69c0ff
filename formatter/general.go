package formatter

type GeneralIssueFormatter struct{}

func (f *GeneralIssueFormatter) IssueTemplate() string {
	return `{{- header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn -}}
{{- snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{- underlineAndMessage .Severity .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{- procedure .Procedure .Padding -}}
{{- note .Note -}}
`
}

// LoopNotStableFormatter points at the loop head that kept changing.
type LoopNotStableFormatter struct{}

func (f *LoopNotStableFormatter) IssueTemplate() string {
	return `{{- header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn -}}
{{- snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{- underlineAndMessage .Severity .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{- procedure .Procedure .Padding -}}
{{- note .Note -}}
{{- help "make the permissions held at the loop head the same on every iteration, or raise max-loop-iterations" -}}
`
}

type ProverFailureFormatter struct{}

func (f *ProverFailureFormatter) IssueTemplate() string {
	return `{{- header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn -}}
{{- snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{- underlineAndMessage .Severity .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{- procedure .Procedure .Padding -}}
{{- note .Note -}}
{{- help "the inserted fold/unfold operations were rejected by the prover; run 'permcheck cfg' to inspect them" -}}
`
}

// MissingPermissionFormatter adds the permission the statement lacked.
type MissingPermissionFormatter struct{}

func (f *MissingPermissionFormatter) IssueTemplate() string {
	return `{{- header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn -}}
{{- snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{- underlineAndMessage .Severity .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{- required .Permission .StmtKind .Padding -}}
{{- procedure .Procedure .Padding -}}
{{- note .Note -}}
`
}

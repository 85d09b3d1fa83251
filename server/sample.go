package server

import "mini-jdi/message"

// HelloSMAP maps the generated servlet of hello.jsp back to its JSP sources.
const HelloSMAP = "SMAP\n" +
	"hello_jsp.java\n" +
	"JSP\n" +
	"*S JSP\n" +
	"*F\n" +
	"+ 1 hello.jsp\n" +
	"WEB-INF/views/hello.jsp\n" +
	"2 footer.jspf\n" +
	"*L\n" +
	"1#1,5:10,2\n" +
	"7:30\n" +
	"1#2:40,0\n" +
	"*E\n"

// Sample class ids.
const (
	GreeterID  message.ReferenceTypeID = 0x100
	HelloJSPID message.ReferenceTypeID = 0x200
	NoDebugID  message.ReferenceTypeID = 0x300
)

// SampleClasses returns a small program: a plain Java class, a JSP servlet carrying an
// SMAP and a class compiled without debug information.
func SampleClasses() []*Class {
	return []*Class{
		{
			ID:         GreeterID,
			Tag:        message.TypeTagClass,
			Signature:  "Lcom/example/Greeter;",
			Status:     message.StatusVerified | message.StatusPrepared | message.StatusInitialized,
			SourceFile: "Greeter.java",
			Methods: []*Method{
				{ID: 0x10, Name: "<init>", Signature: "()V", Modifiers: message.AccPublic, End: 4,
					Lines: []Line{{CodeIndex: 0, Line: 3}}},
				{ID: 0x11, Name: "greet", Signature: "(Ljava/lang/String;)V", Modifiers: message.AccPublic, End: 20,
					Lines: []Line{{0, 7}, {4, 8}, {9, 9}, {15, 10}}},
				{ID: 0x12, Name: "lambda$main$0", Signature: "()V",
					Modifiers: message.AccPrivate | message.AccStatic | message.AccSynthetic, End: 6,
					Lines: []Line{{0, 14}}},
				{ID: 0x13, Name: "nativeHash", Signature: "()I", Modifiers: message.AccPublic | message.AccNative},
			},
		},
		{
			ID:                   HelloJSPID,
			Tag:                  message.TypeTagClass,
			Signature:            "Lorg/apache/jsp/hello_jsp;",
			Status:               message.StatusVerified | message.StatusPrepared | message.StatusInitialized,
			SourceFile:           "hello_jsp.java",
			SourceDebugExtension: HelloSMAP,
			Methods: []*Method{
				{ID: 0x20, Name: "_jspService", Signature: "()V", Modifiers: message.AccPublic, End: 40,
					Lines: []Line{{0, 10}, {5, 12}, {10, 14}, {15, 20}, {20, 30}, {25, 40}}},
			},
		},
		{
			ID:        NoDebugID,
			Tag:       message.TypeTagClass,
			Signature: "LNoDebug;",
			Status:    message.StatusVerified | message.StatusPrepared,
			Methods: []*Method{
				{ID: 0x30, Name: "run", Signature: "()V", Modifiers: message.AccPublic, End: 8},
			},
		},
	}
}
